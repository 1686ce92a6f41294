package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPutAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "/media/")
	require.NoError(t, err)

	ctx := context.Background()
	url, err := store.Put(ctx, "postMedia/u1/123_cat.png", strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/media/postMedia/u1/123_cat.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "postMedia", "u1", "123_cat.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete(ctx, "postMedia/u1/123_cat.png"))
	_, err = os.Stat(filepath.Join(dir, "postMedia", "u1", "123_cat.png"))
	assert.True(t, os.IsNotExist(err))

	// Deleting twice is fine.
	assert.NoError(t, store.Delete(ctx, "postMedia/u1/123_cat.png"))
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "a/../../b", "/abs"} {
		_, err := store.Put(context.Background(), key, strings.NewReader("x"), 1, "text/plain")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalEscapesURL(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "/media")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "postMedia/u1/1700000000000_my photo #1.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/media/postMedia/u1/1700000000000_my%20photo%20%231.png", url)

	srv := httptest.NewServer(MediaHandler("/media", dir))
	defer srv.Close()

	resp, err := http.Get(srv.URL + url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png", string(body))
}

func TestLocalGet(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "chatFiles/r1/1_deck.pdf", strings.NewReader("pdf"), 3, "application/pdf")
	require.NoError(t, err)

	rc, err := store.Get(ctx, "chatFiles/r1/1_deck.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(data))

	_, err = store.Get(ctx, "chatFiles/r1/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "../secret")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPublicFSHidesDirectoriesAndChatFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "/media")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "chatFiles/room-123/1700000000000_contract.pdf", strings.NewReader("pdf"), 3, "application/pdf")
	require.NoError(t, err)
	_, err = store.Put(ctx, "postMedia/u1/1_cat.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)

	srv := httptest.NewServer(MediaHandler("/media", dir))
	defer srv.Close()

	cases := []struct {
		path   string
		status int
	}{
		{"/media/", http.StatusNotFound},
		{"/media/postMedia/", http.StatusNotFound},
		{"/media/postMedia/u1/", http.StatusNotFound},
		{"/media/chatFiles/", http.StatusNotFound},
		{"/media/chatFiles/room-123/", http.StatusNotFound},
		{"/media/chatFiles/room-123/1700000000000_contract.pdf", http.StatusNotFound},
		{"/media/postMedia/../chatFiles/room-123/1700000000000_contract.pdf", http.StatusNotFound},
		{"/media/postMedia/u1/1_cat.png", http.StatusOK},
	}
	for _, tc := range cases {
		resp, err := http.Get(srv.URL + tc.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
	}
}
