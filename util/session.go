package util

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"
)

const SessionCookieName = "session_token"

// SessionStore maps session tokens to user IDs.
type SessionStore interface {
	Create(ctx context.Context, userID string) (string, error)
	// Get returns "" when the token is unknown or expired.
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// GenerateSessionToken creates a cryptographically secure random session token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

type memorySession struct {
	userID  string
	expires time.Time
}

// MemorySessionStore keeps sessions in process memory. Sessions are lost on
// restart and not shared between instances.
type MemorySessionStore struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]memorySession
}

// NewMemorySessionStore creates an in-memory store whose sessions expire
// after ttl.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, sessions: make(map[string]memorySession)}
}

// Create creates a new session for the user and returns the session token.
func (s *MemorySessionStore) Create(ctx context.Context, userID string) (string, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sessions[token] = memorySession{userID: userID, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return token, nil
}

// Get retrieves the user ID associated with a session token.
func (s *MemorySessionStore) Get(ctx context.Context, token string) (string, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return "", nil
	}
	if time.Now().After(sess.expires) {
		s.Delete(ctx, token)
		return "", nil
	}
	return sess.userID, nil
}

// Delete removes a session from the store.
func (s *MemorySessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired sessions.
func (s *MemorySessionStore) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, sess := range s.sessions {
		if now.After(sess.expires) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

// TokenFromRequest extracts the session token from the session cookie, an
// "Authorization: Bearer" header or a "token" query parameter, in that order.
// Browsers can't set headers on WebSocket upgrades, hence the query form.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// SetSessionCookie writes the session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}
