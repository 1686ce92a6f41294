package models

import (
	"io"
	"time"
)

// LastMessage is the preview of the most recent message in a room.
type LastMessage struct {
	Text       string    `json:"text"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatRoom is a two-participant conversation.
type ChatRoom struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Participants []string     `json:"participants"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ChatMessage is one message inside a room.
type ChatMessage struct {
	ID         string    `json:"id" db:"id"`
	RoomID     string    `json:"room_id" db:"room_id"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	SenderName string    `json:"sender_name" db:"sender_name"`
	ReceiverID string    `json:"receiver_id" db:"receiver_id"`
	Text       string    `json:"text" db:"text"`
	FileURL    string    `json:"file_url,omitempty" db:"file_url"`
	FileName   string    `json:"file_name,omitempty" db:"file_name"`
	FileType   string    `json:"file_type,omitempty" db:"file_type"`
	Timestamp  time.Time `json:"timestamp" db:"created_at"`
	Read       bool      `json:"read" db:"read"`
}

// CreateChatRoomRequest opens (or reopens) a room with another user.
type CreateChatRoomRequest struct {
	ParticipantID string `json:"participant_id"`
}

// SendMessageRequest is the JSON body for a text-only message.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// MarkReadRequest lists messages the caller has seen.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// ChatFile is an attachment opened for download.
type ChatFile struct {
	Name        string
	ContentType string
	Body        io.ReadCloser
}
