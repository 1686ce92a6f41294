// Package events publishes domain events (new notifications) to a message
// broker so other services can react to them.
package events

import "context"

// Routing keys.
const (
	NotificationCreated = "notification.created"
)

// Publisher sends an event payload under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(ctx context.Context, routingKey string, payload interface{}) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }
