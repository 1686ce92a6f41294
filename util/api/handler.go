package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"eventure/middleware"
	"eventure/models"
	"eventure/realtime"
	"eventure/services"
	"eventure/util"
)

// maxUploadSize bounds multipart bodies (post media, chat files, images).
const maxUploadSize = 32 << 20 // 32 MB

// Dependencies are the collaborators a Handler needs.
type Dependencies struct {
	Auth          *services.AuthService
	Profiles      *services.ProfileService
	Posts         *services.PostService
	Chat          *services.ChatService
	Notifications *services.NotificationService
	Sessions      util.SessionStore
	Hub           *realtime.Hub
	Logger        *zap.Logger

	SessionTTL     time.Duration
	SecureCookies  bool
	AllowedOrigins []string
}

// Handler serves the Eventure HTTP API.
type Handler struct {
	auth          *services.AuthService
	profiles      *services.ProfileService
	posts         *services.PostService
	chat          *services.ChatService
	notifications *services.NotificationService
	sessions      util.SessionStore
	hub           *realtime.Hub
	logger        *zap.Logger

	sessionTTL     time.Duration
	secureCookies  bool
	allowedOrigins map[string]bool
}

// NewHandler creates a Handler.
func NewHandler(d Dependencies) *Handler {
	origins := make(map[string]bool, len(d.AllowedOrigins))
	for _, o := range d.AllowedOrigins {
		origins[o] = true
	}
	return &Handler{
		auth:           d.Auth,
		profiles:       d.Profiles,
		posts:          d.Posts,
		chat:           d.Chat,
		notifications:  d.Notifications,
		sessions:       d.Sessions,
		hub:            d.Hub,
		logger:         d.Logger,
		sessionTTL:     d.SessionTTL,
		secureCookies:  d.SecureCookies,
		allowedOrigins: origins,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// currentUserID is only called behind middleware.Auth.Require.
func currentUserID(r *http.Request) string {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return userID
}

// writeServiceError maps service errors to status codes. Unexpected errors
// are logged and reported as 500 without details.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidToken):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrAlreadyLiked), errors.Is(err, services.ErrNotLiked):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// formUpload returns the file in field, or nil when the form has none. The
// caller must close the returned file when it isn't nil.
func formUpload(r *http.Request, field string) (*models.Upload, multipart.File, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &models.Upload{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, file, nil
}
