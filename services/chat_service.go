package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventure/database"
	"eventure/models"
	"eventure/realtime"
	"eventure/storage"
)

// roomRow is a chat_rooms row as seen by one participant.
type roomRow struct {
	ID             string         `db:"id"`
	ParticipantA   string         `db:"participant_a"`
	ParticipantB   string         `db:"participant_b"`
	LastText       sql.NullString `db:"last_message_text"`
	LastSenderID   sql.NullString `db:"last_message_sender_id"`
	LastSenderName sql.NullString `db:"last_message_sender_name"`
	LastAt         sql.NullTime   `db:"last_message_at"`
	CreatedAt      time.Time      `db:"created_at"`
	OtherName      string         `db:"other_name"`
	UnreadCount    int            `db:"unread_count"`
}

func (r *roomRow) toModel() models.ChatRoom {
	room := models.ChatRoom{
		ID:           r.ID,
		Name:         r.OtherName,
		Participants: []string{r.ParticipantA, r.ParticipantB},
		UnreadCount:  r.UnreadCount,
		CreatedAt:    r.CreatedAt,
	}
	if r.LastAt.Valid {
		room.LastMessage = &models.LastMessage{
			Text:       r.LastText.String,
			SenderID:   r.LastSenderID.String,
			SenderName: r.LastSenderName.String,
			Timestamp:  r.LastAt.Time,
		}
	}
	return room
}

// roomSelect needs the viewer's id bound four times.
const roomSelect = `
	SELECT r.id, r.participant_a, r.participant_b,
		r.last_message_text, r.last_message_sender_id, r.last_message_sender_name, r.last_message_at,
		r.created_at,
		u.display_name AS other_name,
		(SELECT COUNT(*) FROM chat_messages m WHERE m.room_id = r.id AND m.receiver_id = ? AND m.read = 0) AS unread_count
	FROM chat_rooms r
	JOIN users u ON u.id = CASE WHEN r.participant_a = ? THEN r.participant_b ELSE r.participant_a END
	WHERE (r.participant_a = ? OR r.participant_b = ?)`

const messageColumns = `id, room_id, sender_id, sender_name, receiver_id, text, file_url, file_name, file_type, created_at, read`

// ChatService manages two-party chat rooms and their messages.
type ChatService struct {
	db            *sqlx.DB
	blobs         storage.Blob
	notifications *NotificationService
	hub           Broadcaster
	logger        *zap.Logger
}

// NewChatService creates a ChatService.
func NewChatService(db *sqlx.DB, blobs storage.Blob, notifications *NotificationService, hub Broadcaster, logger *zap.Logger) *ChatService {
	return &ChatService{db: db, blobs: blobs, notifications: notifications, hub: hub, logger: logger}
}

func sortedPair(u1, u2 string) (string, string) {
	if u1 < u2 {
		return u1, u2
	}
	return u2, u1
}

func (s *ChatService) roomFor(ctx context.Context, q sqlx.QueryerContext, viewerID, extra string, args ...interface{}) (*models.ChatRoom, error) {
	var rows []roomRow
	all := append([]interface{}{viewerID, viewerID, viewerID, viewerID}, args...)
	if err := sqlx.SelectContext(ctx, q, &rows, roomSelect+extra, all...); err != nil {
		return nil, fmt.Errorf("error getting chat room: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	room := rows[0].toModel()
	return &room, nil
}

// FindExistingChatRoom returns the room shared by exactly these two
// participants, or ErrNotFound.
func (s *ChatService) FindExistingChatRoom(ctx context.Context, participants []string) (*models.ChatRoom, error) {
	if len(participants) != 2 || participants[0] == "" || participants[1] == "" || participants[0] == participants[1] {
		return nil, fmt.Errorf("a chat room needs two distinct participants: %w", ErrInvalidInput)
	}
	a, b := sortedPair(participants[0], participants[1])
	room, err := s.roomFor(ctx, s.db, participants[0], ` AND r.participant_a = ? AND r.participant_b = ?`, a, b)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("no chat room for %s and %s: %w", a, b, ErrNotFound)
	}
	return room, err
}

// CreateChatRoom returns the room between userID and otherID, creating it if
// needed. Concurrent calls for the same pair end up with the same room.
func (s *ChatService) CreateChatRoom(ctx context.Context, userID, otherID string) (*models.ChatRoom, error) {
	if otherID == "" || userID == otherID {
		return nil, fmt.Errorf("cannot open a chat room with yourself: %w", ErrInvalidInput)
	}
	if _, err := getUser(ctx, s.db, otherID); err != nil {
		return nil, err
	}

	room, err := s.FindExistingChatRoom(ctx, []string{userID, otherID})
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	a, b := sortedPair(userID, otherID)
	ts := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (id, participant_a, participant_b, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?)`, newID(), a, b, ts.UnixNano(), ts)
	switch {
	case err == nil:
		s.logger.Debug("chat room created", zap.String("participant_a", a), zap.String("participant_b", b))
		s.hub.Publish(ctx, realtime.ChatRoomsTopic(a))
		s.hub.Publish(ctx, realtime.ChatRoomsTopic(b))
	case database.IsUniqueViolation(err):
		// Lost the race to another request for the same pair.
	default:
		return nil, fmt.Errorf("error creating chat room: %w", err)
	}

	return s.FindExistingChatRoom(ctx, []string{userID, otherID})
}

// GetChatRoom returns a room the viewer participates in.
func (s *ChatService) GetChatRoom(ctx context.Context, roomID, viewerID string) (*models.ChatRoom, error) {
	if err := s.checkParticipant(ctx, s.db, roomID, viewerID); err != nil {
		return nil, err
	}
	return s.roomFor(ctx, s.db, viewerID, ` AND r.id = ?`, roomID)
}

// GetUserChatRooms lists userID's rooms, most recent activity first.
func (s *ChatService) GetUserChatRooms(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	var rows []roomRow
	err := s.db.SelectContext(ctx, &rows, roomSelect+` ORDER BY r.last_activity DESC, r.seq DESC`,
		userID, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting chat rooms: %w", err)
	}

	rooms := make([]models.ChatRoom, 0, len(rows))
	for i := range rows {
		rooms = append(rooms, rows[i].toModel())
	}
	return rooms, nil
}

// participants returns both members of roomID.
func participants(ctx context.Context, q sqlx.QueryerContext, roomID string) (string, string, error) {
	var p struct {
		A string `db:"participant_a"`
		B string `db:"participant_b"`
	}
	err := sqlx.GetContext(ctx, q, &p, `SELECT participant_a, participant_b FROM chat_rooms WHERE id = ?`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("chat room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("error getting chat room: %w", err)
	}
	return p.A, p.B, nil
}

func (s *ChatService) checkParticipant(ctx context.Context, q sqlx.QueryerContext, roomID, userID string) error {
	a, b, err := participants(ctx, q, roomID)
	if err != nil {
		return err
	}
	if userID != a && userID != b {
		return fmt.Errorf("user is not a participant of chat room %s: %w", roomID, ErrForbidden)
	}
	return nil
}

// SendMessage posts a message from senderID to the other participant. Text
// or a file is required. The receiver gets a message notification.
func (s *ChatService) SendMessage(ctx context.Context, roomID, senderID, text string, file *models.Upload) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" && file == nil {
		return nil, fmt.Errorf("message text or file is required: %w", ErrInvalidInput)
	}

	a, b, err := participants(ctx, s.db, roomID)
	if err != nil {
		return nil, err
	}
	if senderID != a && senderID != b {
		return nil, fmt.Errorf("user is not a participant of chat room %s: %w", roomID, ErrForbidden)
	}
	receiverID := a
	if senderID == a {
		receiverID = b
	}

	sender, err := getUser(ctx, s.db, senderID)
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ID:         newID(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: sender.DisplayName,
		ReceiverID: receiverID,
		Text:       text,
		Timestamp:  now(),
	}

	var fileKey string
	if file != nil {
		stored := fmt.Sprintf("%d_%s", msg.Timestamp.UnixMilli(), file.Name)
		fileKey = chatFileKey(roomID, stored)
		if _, err := s.blobs.Put(ctx, fileKey, file.Body, file.Size, file.ContentType); err != nil {
			return nil, fmt.Errorf("error storing chat file: %w", err)
		}
		msg.FileURL, msg.FileName, msg.FileType = chatFileURL(roomID, stored), file.Name, file.ContentType
	}

	preview := text
	if preview == "" {
		preview = msg.FileName
	}

	err = database.WithTx(ctx, s.db, s.logger, "send message", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (`+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.ReceiverID, msg.Text,
			msg.FileURL, msg.FileName, msg.FileType, msg.Timestamp, msg.Read)
		if err != nil {
			return fmt.Errorf("error saving message: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE chat_rooms SET
				last_message_text = ?,
				last_message_sender_id = ?,
				last_message_sender_name = ?,
				last_message_at = ?,
				last_activity = ?
			WHERE id = ?`,
			preview, msg.SenderID, msg.SenderName, msg.Timestamp, msg.Timestamp.UnixNano(), roomID)
		if err != nil {
			return fmt.Errorf("error updating chat room: %w", err)
		}
		return nil
	})
	if err != nil {
		if fileKey != "" {
			if delErr := s.blobs.Delete(ctx, fileKey); delErr != nil {
				s.logger.Warn("failed to remove orphaned chat file", zap.String("key", fileKey), zap.Error(delErr))
			}
		}
		return nil, err
	}

	s.hub.Publish(ctx, realtime.MessagesTopic(roomID))
	s.hub.Publish(ctx, realtime.ChatRoomsTopic(a))
	s.hub.Publish(ctx, realtime.ChatRoomsTopic(b))
	s.notifications.NotifyFrom(ctx, receiverID, models.NotificationMessage, msg.ID, sender)

	return msg, nil
}

func chatFileKey(roomID, stored string) string {
	return storage.ChatFilesPrefix + roomID + "/" + stored
}

// chatFileURL is the API path that serves a chat file to room participants.
func chatFileURL(roomID, stored string) string {
	return "/chat/rooms/" + url.PathEscape(roomID) + "/files/" + url.PathEscape(stored)
}

// OpenChatFile opens a file attached to a message in roomID. Only the room's
// participants may read it. The caller closes the returned body.
func (s *ChatService) OpenChatFile(ctx context.Context, roomID, viewerID, stored string) (*models.ChatFile, error) {
	if err := s.checkParticipant(ctx, s.db, roomID, viewerID); err != nil {
		return nil, err
	}

	var meta struct {
		Name string `db:"file_name"`
		Type string `db:"file_type"`
	}
	err := s.db.GetContext(ctx, &meta,
		`SELECT file_name, file_type FROM chat_messages WHERE room_id = ? AND file_url = ? LIMIT 1`,
		roomID, chatFileURL(roomID, stored))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat file %s: %w", stored, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting chat file: %w", err)
	}

	body, err := s.blobs.Get(ctx, chatFileKey(roomID, stored))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("chat file %s: %w", stored, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &models.ChatFile{Name: meta.Name, ContentType: meta.Type, Body: body}, nil
}

// GetChatMessages returns the messages of a room, oldest first.
func (s *ChatService) GetChatMessages(ctx context.Context, roomID, viewerID string) ([]models.ChatMessage, error) {
	if err := s.checkParticipant(ctx, s.db, roomID, viewerID); err != nil {
		return nil, err
	}

	messages := []models.ChatMessage{}
	err := s.db.SelectContext(ctx, &messages,
		`SELECT `+messageColumns+` FROM chat_messages WHERE room_id = ? ORDER BY seq`, roomID)
	if err != nil {
		return nil, fmt.Errorf("error getting messages: %w", err)
	}
	return messages, nil
}

// MarkMessagesAsRead marks the listed messages read. Only messages in roomID
// that were sent to the viewer change; an empty list does nothing.
func (s *ChatService) MarkMessagesAsRead(ctx context.Context, roomID, viewerID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	a, b, err := participants(ctx, s.db, roomID)
	if err != nil {
		return 0, err
	}
	if viewerID != a && viewerID != b {
		return 0, fmt.Errorf("user is not a participant of chat room %s: %w", roomID, ErrForbidden)
	}

	query, args, err := sqlx.In(`
		UPDATE chat_messages SET read = 1
		WHERE room_id = ? AND receiver_id = ? AND read = 0 AND id IN (?)`, roomID, viewerID, messageIDs)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("error marking messages as read: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		s.hub.Publish(ctx, realtime.MessagesTopic(roomID))
		s.hub.Publish(ctx, realtime.ChatRoomsTopic(viewerID))
	}
	return n, nil
}
