// Package storage holds uploaded media: post attachments, profile and cover
// images and chat files.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

var (
	// ErrInvalidKey is returned for keys that are empty or escape the store root.
	ErrInvalidKey = errors.New("invalid storage key")
	// ErrNotFound is returned by Get for missing objects.
	ErrNotFound = errors.New("object not found")
)

// Blob stores objects under slash-separated keys.
type Blob interface {
	// Put writes r under key and returns the public URL of the object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Get opens the object stored under key. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// escapeKey escapes every segment of key for use in a URL path.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
