package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventure/events"
	"eventure/models"
	"eventure/realtime"
)

const notificationColumns = `id, user_id, type, source_id, source_user_id, source_user_name, source_user_photo, read, created_at`

// NotificationService stores notifications and pushes them to recipients.
type NotificationService struct {
	db     *sqlx.DB
	hub    Broadcaster
	events events.Publisher
	logger *zap.Logger
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(db *sqlx.DB, hub Broadcaster, publisher events.Publisher, logger *zap.Logger) *NotificationService {
	return &NotificationService{db: db, hub: hub, events: publisher, logger: logger}
}

// NotifyFrom builds a notification of type t for recipient, triggered by actor
// about source, and stores it. Self-notifications are skipped.
func (s *NotificationService) NotifyFrom(ctx context.Context, recipient string, t models.NotificationType, sourceID string, actor *models.User) {
	n := &models.Notification{
		UserID:          recipient,
		Type:            t,
		SourceID:        sourceID,
		SourceUserID:    actor.ID,
		SourceUserName:  actor.DisplayName,
		SourceUserPhoto: actor.PhotoURL,
	}
	if err := s.Create(ctx, n); err != nil {
		s.logger.Error("failed to create notification",
			zap.String("type", string(t)),
			zap.String("recipient", recipient),
			zap.String("source_id", sourceID),
			zap.Error(err))
	}
}

// Create stores n, fills its ID and timestamp, pushes the recipient's
// notification list and publishes a NotificationCreated event. A notification
// addressed to the user who triggered it is silently dropped.
func (s *NotificationService) Create(ctx context.Context, n *models.Notification) error {
	if n.UserID == "" || n.SourceID == "" || n.SourceUserID == "" {
		return fmt.Errorf("notification needs recipient, source and actor: %w", ErrInvalidInput)
	}
	switch n.Type {
	case models.NotificationMessage, models.NotificationLike, models.NotificationComment:
	default:
		return fmt.Errorf("unknown notification type %q: %w", n.Type, ErrInvalidInput)
	}
	if n.UserID == n.SourceUserID {
		return nil
	}

	n.ID = newID()
	n.Read = false
	n.CreatedAt = now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, source_id, source_user_id, source_user_name, source_user_photo, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.SourceID, n.SourceUserID, n.SourceUserName, n.SourceUserPhoto, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}

	s.hub.Publish(ctx, realtime.NotificationsTopic(n.UserID))
	if err := s.events.Publish(ctx, events.NotificationCreated, n); err != nil {
		s.logger.Warn("failed to publish notification event", zap.String("notification_id", n.ID), zap.Error(err))
	}
	return nil
}

// GetUserNotifications returns the newest notifications of userID.
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	limit = clampLimit(limit, 20, 100)

	notifications := []models.Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error getting notifications: %w", err)
	}
	return notifications, nil
}

// GetUnreadCount counts userID's unread notifications.
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("error counting unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) checkOwner(ctx context.Context, notificationID, userID string) error {
	var owner string
	err := s.db.GetContext(ctx, &owner, `SELECT user_id FROM notifications WHERE id = ?`, notificationID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("notification %s: %w", notificationID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("error getting notification: %w", err)
	}
	if owner != userID {
		return fmt.Errorf("notification %s belongs to another user: %w", notificationID, ErrForbidden)
	}
	return nil
}

// MarkAsRead marks one of userID's notifications as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	if err := s.checkOwner(ctx, notificationID, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, notificationID, userID); err != nil {
		return fmt.Errorf("error marking notification as read: %w", err)
	}
	s.hub.Publish(ctx, realtime.NotificationsTopic(userID))
	return nil
}

// MarkAllAsRead marks every unread notification of userID as read and
// returns how many changed.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("error marking notifications as read: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.hub.Publish(ctx, realtime.NotificationsTopic(userID))
	}
	return n, nil
}

// Delete removes one of userID's notifications.
func (s *NotificationService) Delete(ctx context.Context, notificationID, userID string) error {
	if err := s.checkOwner(ctx, notificationID, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, notificationID, userID); err != nil {
		return fmt.Errorf("error deleting notification: %w", err)
	}
	s.hub.Publish(ctx, realtime.NotificationsTopic(userID))
	return nil
}

// deleteForSource removes the notifications of the given types that point at
// sourceID and returns their recipients.
func deleteForSource(ctx context.Context, tx *sqlx.Tx, sourceID string, types ...models.NotificationType) ([]string, error) {
	query, args, err := sqlx.In(`SELECT DISTINCT user_id FROM notifications WHERE source_id = ? AND type IN (?)`, sourceID, types)
	if err != nil {
		return nil, err
	}
	var recipients []string
	if err := tx.SelectContext(ctx, &recipients, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("error finding notifications for %s: %w", sourceID, err)
	}

	query, args, err = sqlx.In(`DELETE FROM notifications WHERE source_id = ? AND type IN (?)`, sourceID, types)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("error deleting notifications for %s: %w", sourceID, err)
	}
	return recipients, nil
}

// Refresh pushes the notification list of each user.
func (s *NotificationService) Refresh(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		s.hub.Publish(ctx, realtime.NotificationsTopic(id))
	}
}
