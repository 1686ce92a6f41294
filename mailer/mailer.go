// Package mailer sends transactional email such as password reset links.
package mailer

import "context"

// Email is a single outbound message.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}
