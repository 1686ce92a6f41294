package api

import (
	"net/http"

	"go.uber.org/zap"

	"eventure/models"
	"eventure/util"
)

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	token, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to create session", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return false
	}
	util.SetSessionCookie(w, token, h.sessionTTL, h.secureCookies)
	return true
}

func userResponse(u *models.User) models.UserResponse {
	return models.UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		DisplayName: u.DisplayName,
	}
}

// SignupHandler handles user registration and signs the new user in.
func (h *Handler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	writeJSON(w, http.StatusCreated, userResponse(user))
}

// LoginHandler handles user login.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	h.logger.Info("login successful", zap.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, userResponse(user))
}

// LogoutHandler drops the session, if any, and clears the cookie.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if token := util.TokenFromRequest(r); token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			h.logger.Warn("failed to delete session", zap.Error(err))
		}
	}
	util.ClearSessionCookie(w, h.secureCookies)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// PasswordResetHandler mails a reset link. It answers the same way whether
// or not the address is registered.
func (h *Handler) PasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "If the address is registered, a reset link has been sent"})
}

// PasswordResetConfirmHandler sets a new password from a reset token.
func (h *Handler) PasswordResetConfirmHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.auth.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// CheckAuthHandler answers 200 for signed-in callers.
func (h *Handler) CheckAuthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"user_id": currentUserID(r)})
}

// MeHandler returns the signed-in user's profile.
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.auth.GetCurrentUserProfile(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
