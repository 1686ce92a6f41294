package api

import (
	"net/http"
	"strconv"

	"eventure/models"
)

// GetNotificationsHandler retrieves notifications for the authenticated user.
// GET /notifications?limit={n}
func (h *Handler) GetNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil {
			limit = l
		}
	}

	notifications, err := h.notifications.GetUserNotifications(r.Context(), currentUserID(r), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// GetUnreadCountHandler returns the count of unread notifications.
func (h *Handler) GetUnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.notifications.GetUnreadCount(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NotificationCount{UnreadCount: count})
}

// MarkNotificationAsReadHandler marks a specific notification as read.
// PATCH /notifications/{notificationID}/read
func (h *Handler) MarkNotificationAsReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkAsRead(r.Context(), r.PathValue("notificationID"), currentUserID(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// MarkAllNotificationsAsReadHandler marks all notifications as read for the user.
func (h *Handler) MarkAllNotificationsAsReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllAsRead(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "updated": n})
}

// DeleteNotificationHandler deletes one of the caller's notifications.
// DELETE /notifications/{notificationID}
func (h *Handler) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Delete(r.Context(), r.PathValue("notificationID"), currentUserID(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
