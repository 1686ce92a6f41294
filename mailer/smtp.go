package mailer

import (
	"context"
	"fmt"

	"gopkg.in/mail.v2"
)

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	dialer *mail.Dialer
	from   string
}

// NewSMTP creates an SMTP mailer.
func NewSMTP(host string, port int, username, password, from string) *SMTP {
	return &SMTP{
		dialer: mail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send dials the relay and delivers email.
func (s *SMTP) Send(ctx context.Context, email Email) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/plain", email.TextBody)
	if email.HTMLBody != "" {
		m.AddAlternative("text/html", email.HTMLBody)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
