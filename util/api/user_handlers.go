package api

import (
	"net/http"

	"eventure/models"
)

// GetUserProfileHandler returns any user's profile.
// GET /users/{userID}
func (h *Handler) GetUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.GetUserProfile(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// GetUserPostsHandler returns a user's posts, newest first.
// GET /users/{userID}/posts
func (h *Handler) GetUserPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.GetUserPosts(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// SearchUsersHandler searches profiles by text and optional role.
// GET /search?q=&role=
func (h *Handler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := h.profiles.SearchUsers(r.Context(), q.Get("q"), models.SearchFilters{Role: models.Role(q.Get("role"))})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
