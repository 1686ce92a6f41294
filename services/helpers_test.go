package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventure/database"
	"eventure/events"
	"eventure/mailer"
	"eventure/models"
	"eventure/realtime"
	"eventure/storage"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	topics []realtime.Topic
}

func (r *recordingBroadcaster) Publish(ctx context.Context, topic realtime.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
}

func (r *recordingBroadcaster) published(topic realtime.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var _ events.Publisher = (*recordingPublisher)(nil)

type testEnv struct {
	db            *sqlx.DB
	blobDir       string
	hub           *recordingBroadcaster
	publisher     *recordingPublisher
	mail          *mailer.Log
	auth          *AuthService
	profiles      *ProfileService
	posts         *PostService
	chat          *ChatService
	notifications *NotificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.Open(filepath.Join(t.TempDir(), "eventure.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobDir := t.TempDir()
	blobs, err := storage.NewLocal(blobDir, "/media")
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		blobDir:   blobDir,
		hub:       &recordingBroadcaster{},
		publisher: &recordingPublisher{},
		mail:      mailer.NewLog(logger, mailer.KeepLast()),
	}
	env.notifications = NewNotificationService(db, env.hub, env.publisher, logger)
	env.profiles = NewProfileService(db, blobs, logger)
	env.posts = NewPostService(db, blobs, env.notifications, logger)
	env.chat = NewChatService(db, blobs, env.notifications, env.hub, logger)
	env.auth, err = NewAuthService(db, env.profiles, env.mail, AuthOptions{
		ResetSecret: "test-secret",
		ResetURL:    "http://localhost:3000/reset-password",
	}, logger)
	require.NoError(t, err)
	return env
}

func (e *testEnv) register(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), models.RegisterRequest{
		Email:       strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Password:    "secret123",
		DisplayName: name,
		Role:        role,
	})
	require.NoError(t, err)
	return u
}
