package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore(time.Hour)
	ctx := context.Background()

	token, err := store.Create(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	userID, err := store.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	require.NoError(t, store.Delete(ctx, token))
	userID, err = store.Get(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	store := NewMemorySessionStore(-time.Second)
	ctx := context.Background()

	token, err := store.Create(ctx, "u1")
	require.NoError(t, err)

	userID, err := store.Get(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, userID)

	_, err = store.Create(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Sweep())
}

func TestGenerateSessionTokenIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := GenerateSessionToken()
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))

	assert.Empty(t, TokenFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "abc", time.Hour, true)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, false)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
