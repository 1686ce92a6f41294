package api

import (
	"net/http"

	"eventure/models"
)

// UpdateProfileHandler updates display name and about text.
// PUT /profile
func (h *Handler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.UpdateUserProfile(r.Context(), currentUserID(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateOrganizerProfileHandler updates organizer-only fields.
// PUT /profile/organizer
func (h *Handler) UpdateOrganizerProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateOrganizerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.UpdateOrganizerProfile(r.Context(), currentUserID(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateSponsorProfileHandler updates sponsor-only fields.
// PUT /profile/sponsor
func (h *Handler) UpdateSponsorProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSponsorRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.UpdateSponsorProfile(r.Context(), currentUserID(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// AddUpcomingEventHandler adds an event to the organizer's list.
// POST /profile/events
func (h *Handler) AddUpcomingEventHandler(w http.ResponseWriter, r *http.Request) {
	var ev models.UpcomingEvent
	if err := decodeJSON(r, &ev); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.profiles.AddUpcomingEvent(r.Context(), currentUserID(r), ev)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// RemoveUpcomingEventHandler removes one of the organizer's events.
// DELETE /profile/events/{eventID}
func (h *Handler) RemoveUpcomingEventHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.RemoveUpcomingEvent(r.Context(), currentUserID(r), r.PathValue("eventID")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
