package models

import "time"

// NotificationType is the kind of event a notification records.
type NotificationType string

const (
	NotificationMessage NotificationType = "message"
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
)

// Notification represents a notification in the system.
type Notification struct {
	ID              string           `json:"id" db:"id"`
	UserID          string           `json:"user_id" db:"user_id"` // Who receives the notification
	Type            NotificationType `json:"type" db:"type"`
	SourceID        string           `json:"source_id" db:"source_id"`           // Message or post id
	SourceUserID    string           `json:"source_user_id" db:"source_user_id"` // Who triggered the notification
	SourceUserName  string           `json:"source_user_name" db:"source_user_name"`
	SourceUserPhoto string           `json:"source_user_photo" db:"source_user_photo"`
	Read            bool             `json:"read" db:"read"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
}

// NotificationCount represents unread notification count.
type NotificationCount struct {
	UnreadCount int `json:"unread_count"`
}
