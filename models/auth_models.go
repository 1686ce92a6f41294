package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Role distinguishes the two kinds of Eventure accounts.
type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleSponsor   Role = "sponsor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOrganizer || r == RoleSponsor
}

// RegisterRequest defines the structure for the sign-up request body.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// LoginRequest defines the structure for the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordResetRequest asks for a reset link to be mailed.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest carries the mailed token and the new password.
type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// User is the base account record shared by both roles.
type User struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	Role          Role      `json:"role" db:"role"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	PhotoURL      string    `json:"photo_url" db:"photo_url"`
	CoverImageURL string    `json:"cover_image_url" db:"cover_image_url"`
	About         string    `json:"about" db:"about"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// UserResponse is returned after sign-up and login.
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
}

// StringList is a list of strings persisted as a JSON array column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}
