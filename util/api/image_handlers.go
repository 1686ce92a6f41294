package api

import (
	"context"
	"net/http"

	"eventure/models"
)

type imageUploader func(ctx context.Context, userID string, up models.Upload) (string, error)

// uploadImage reads the "image" field of a multipart form and stores it.
func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request, upload imageUploader, field string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	up, file, err := formUpload(r, "image")
	if err != nil {
		http.Error(w, "Error retrieving file: "+err.Error(), http.StatusBadRequest)
		return
	}
	if up == nil {
		http.Error(w, "An image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	url, err := upload(r.Context(), currentUserID(r), *up)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{field: url})
}

// ProfileImageUploadHandler replaces the profile photo.
// POST /profile/photo
func (h *Handler) ProfileImageUploadHandler(w http.ResponseWriter, r *http.Request) {
	h.uploadImage(w, r, h.profiles.UploadProfileImage, "photo_url")
}

// CoverImageUploadHandler replaces the cover image.
// POST /profile/cover
func (h *Handler) CoverImageUploadHandler(w http.ResponseWriter, r *http.Request) {
	h.uploadImage(w, r, h.profiles.UploadCoverImage, "cover_image_url")
}
