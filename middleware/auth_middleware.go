package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"eventure/util"
)

// UserIDKey is the key used to store the UserID in the request context.
type UserIDKeyType string

const UserIDKey UserIDKeyType = "userID"

// UserChecker reports whether an account still exists.
type UserChecker interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Auth resolves the session token of each request to a user ID.
type Auth struct {
	sessions util.SessionStore
	users    UserChecker
	logger   *zap.Logger
}

// NewAuth creates the authentication middleware.
func NewAuth(sessions util.SessionStore, users UserChecker, logger *zap.Logger) *Auth {
	return &Auth{sessions: sessions, users: users, logger: logger}
}

// UserIDFromRequest returns the signed-in user's ID, or "" when the request
// carries no valid session. Sessions of deleted users are dropped.
func (a *Auth) UserIDFromRequest(r *http.Request) (string, error) {
	token := util.TokenFromRequest(r)
	if token == "" {
		return "", nil
	}

	userID, err := a.sessions.Get(r.Context(), token)
	if err != nil || userID == "" {
		return "", err
	}

	exists, err := a.users.UserExists(r.Context(), userID)
	if err != nil {
		return "", err
	}
	if !exists {
		a.sessions.Delete(r.Context(), token)
		return "", nil
	}
	return userID, nil
}

// Require checks for a valid session. If valid, it proceeds to the next
// handler with the user ID in the context. Otherwise it returns 401.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.UserIDFromRequest(r)
		if err != nil {
			a.logger.Error("error resolving session", zap.Error(err))
			http.Error(w, "Server error processing authentication", http.StatusInternalServerError)
			return
		}

		if userID == "" {
			a.logger.Debug("unauthorized request", zap.String("remote_addr", r.RemoteAddr), zap.String("path", r.URL.Path))
			http.Error(w, "Unauthorized: You must be logged in.", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireFunc is Require for handler functions.
func (a *Auth) RequireFunc(fn http.HandlerFunc) http.Handler {
	return a.Require(fn)
}

// UserIDFromContext returns the user ID stored by Require.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
