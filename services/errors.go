package services

import "errors"

// Sentinel errors returned (wrapped) by every service. Handlers map them to
// HTTP status codes with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAlreadyLiked       = errors.New("post already liked")
	ErrNotLiked           = errors.New("post not liked")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
