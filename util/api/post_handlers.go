package api

import (
	"net/http"
	"strconv"

	"eventure/models"
)

// CreatePostHandler accepts either a JSON body or a multipart form with a
// "content" field and an optional "media" file.
// POST /posts
func (h *Handler) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	var content string
	var media *models.Upload

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			http.Error(w, "Error parsing multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		content = r.FormValue("content")

		up, file, err := formUpload(r, "media")
		if err != nil {
			http.Error(w, "Error retrieving file: "+err.Error(), http.StatusBadRequest)
			return
		}
		if file != nil {
			defer file.Close()
		}
		media = up
	} else {
		var req models.CreatePostRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		content = req.Content
	}

	post, err := h.posts.CreatePost(r.Context(), currentUserID(r), content, media)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// GetPostsHandler returns a page of the feed.
// GET /posts?after={postID}&limit={n}
func (h *Handler) GetPostsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = l
	}

	posts, err := h.posts.GetPosts(r.Context(), q.Get("after"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// GetPostHandler returns one post.
// GET /posts/{postID}
func (h *Handler) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.GetPostByID(r.Context(), r.PathValue("postID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// UpdatePostHandler edits the caller's own post.
// PUT /posts/{postID}
func (h *Handler) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdatePostRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	post, err := h.posts.UpdatePost(r.Context(), r.PathValue("postID"), currentUserID(r), req.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// DeletePostHandler deletes the caller's own post.
// DELETE /posts/{postID}
func (h *Handler) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.DeletePost(r.Context(), r.PathValue("postID"), currentUserID(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}
