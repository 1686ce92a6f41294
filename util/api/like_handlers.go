package api

import "net/http"

// LikePostHandler likes a post.
// POST /posts/{postID}/like
func (h *Handler) LikePostHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.posts.LikePost(r.Context(), r.PathValue("postID"), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UnlikePostHandler removes the caller's like.
// DELETE /posts/{postID}/like
func (h *Handler) UnlikePostHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.posts.UnlikePost(r.Context(), r.PathValue("postID"), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
