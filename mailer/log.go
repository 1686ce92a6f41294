package mailer

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Log writes emails to the logger instead of sending them. Message bodies
// may carry live reset links, so they are only logged at debug level.
type Log struct {
	logger *zap.Logger

	mu   sync.Mutex
	last map[string]Email // nil unless KeepLast is set
}

// LogOption configures a Log mailer.
type LogOption func(*Log)

// KeepLast makes the mailer remember the last email per recipient for Last.
// Meant for tests and local tooling; the map is never pruned.
func KeepLast() LogOption {
	return func(l *Log) {
		l.last = make(map[string]Email)
	}
}

// NewLog creates a logging mailer.
func NewLog(logger *zap.Logger, opts ...LogOption) *Log {
	l := &Log{logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Send logs email.
func (l *Log) Send(ctx context.Context, email Email) error {
	if l.last != nil {
		l.mu.Lock()
		l.last[email.To] = email
		l.mu.Unlock()
	}

	l.logger.Info("email not sent (log mailer)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject))
	l.logger.Debug("log mailer body",
		zap.String("to", email.To),
		zap.String("body", email.TextBody))
	return nil
}

// Last returns the most recent email sent to addr. It always reports false
// unless the mailer was created with KeepLast.
func (l *Log) Last(addr string) (Email, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.last[addr]
	return e, ok
}
