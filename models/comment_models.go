package models

import "time"

// CreateCommentRequest defines the structure for creating a new comment.
type CreateCommentRequest struct {
	Content string `json:"content"`
}

// Comment is a reply on a post.
type Comment struct {
	ID           string    `json:"id" db:"id"`
	PostID       string    `json:"post_id" db:"post_id"`
	UserID       string    `json:"user_id" db:"user_id"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	UserPhotoURL string    `json:"user_photo_url" db:"user_photo_url"`
	Content      string    `json:"content" db:"content"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
