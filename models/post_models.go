package models

import (
	"io"
	"time"
)

// MediaType classifies an attachment on a post.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// CreatePostRequest defines the JSON body for creating a post without media.
type CreatePostRequest struct {
	Content string `json:"content"`
}

// UpdatePostRequest defines the body for editing a post.
type UpdatePostRequest struct {
	Content string `json:"content"`
}

// Post is a feed item with its author snapshot, likes and comments.
type Post struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	UserRole     Role      `json:"user_role" db:"user_role"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	UserPhotoURL string    `json:"user_photo_url" db:"user_photo_url"`
	Content      string    `json:"content" db:"content"`
	MediaURL     string    `json:"media_url,omitempty" db:"media_url"`
	MediaType    MediaType `json:"media_type,omitempty" db:"media_type"`
	Likes        int       `json:"likes" db:"likes"`
	LikedBy      []string  `json:"liked_by" db:"-"`
	Comments     []Comment `json:"comments" db:"-"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Upload is a file handed to a service for storage.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}
