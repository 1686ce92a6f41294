package api

import (
	"net/http"

	"eventure/models"
)

// CreateCommentHandler handles adding a new comment to a post.
// POST /posts/{postID}/comments
func (h *Handler) CreateCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	comment, err := h.posts.AddComment(r.Context(), r.PathValue("postID"), currentUserID(r), req.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}
