// Package services implements Eventure's business operations on top of the
// database, blob storage, the realtime hub and the mailer.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"eventure/models"
	"eventure/realtime"
)

// Broadcaster pushes fresh snapshots to realtime subscribers of a topic.
type Broadcaster interface {
	Publish(ctx context.Context, topic realtime.Topic)
}

// NopBroadcaster drops every publish.
type NopBroadcaster struct{}

// Publish does nothing.
func (NopBroadcaster) Publish(ctx context.Context, topic realtime.Topic) {}

const userColumns = `id, email, password_hash, role, display_name, photo_url, cover_image_url, about, created_at, updated_at`

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC() }

func getUser(ctx context.Context, q sqlx.QueryerContext, id string) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return &u, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
