package api

import (
	"net/http"

	"eventure/middleware"
)

// Routes registers every API route on mux. Signup, login and password reset
// are rate limited per client IP.
func (h *Handler) Routes(mux *http.ServeMux, auth *middleware.Auth, limiter *middleware.RateLimiter) {
	protect := auth.RequireFunc
	limit := func(fn http.HandlerFunc) http.Handler {
		if limiter == nil {
			return fn
		}
		return limiter.Limit(fn)
	}

	mux.Handle("/ws", protect(h.WebSocketHandler))

	// Auth handlers
	mux.Handle("POST /signup", limit(h.SignupHandler))
	mux.Handle("POST /login", limit(h.LoginHandler))
	mux.HandleFunc("POST /logout", h.LogoutHandler)
	mux.Handle("POST /password-reset", limit(h.PasswordResetHandler))
	mux.Handle("POST /password-reset/confirm", limit(h.PasswordResetConfirmHandler))
	mux.Handle("GET /checkAuth", protect(h.CheckAuthHandler))
	mux.Handle("GET /me", protect(h.MeHandler))

	// Users and profiles
	mux.Handle("GET /users/{userID}", protect(h.GetUserProfileHandler))
	mux.Handle("GET /users/{userID}/posts", protect(h.GetUserPostsHandler))
	mux.Handle("GET /search", protect(h.SearchUsersHandler))
	mux.Handle("PUT /profile", protect(h.UpdateProfileHandler))
	mux.Handle("PUT /profile/organizer", protect(h.UpdateOrganizerProfileHandler))
	mux.Handle("PUT /profile/sponsor", protect(h.UpdateSponsorProfileHandler))
	mux.Handle("POST /profile/events", protect(h.AddUpcomingEventHandler))
	mux.Handle("DELETE /profile/events/{eventID}", protect(h.RemoveUpcomingEventHandler))
	mux.Handle("POST /profile/photo", protect(h.ProfileImageUploadHandler))
	mux.Handle("POST /profile/cover", protect(h.CoverImageUploadHandler))

	// Post handlers
	mux.Handle("POST /posts", protect(h.CreatePostHandler))
	mux.Handle("GET /posts", protect(h.GetPostsHandler))
	mux.Handle("GET /posts/{postID}", protect(h.GetPostHandler))
	mux.Handle("PUT /posts/{postID}", protect(h.UpdatePostHandler))
	mux.Handle("DELETE /posts/{postID}", protect(h.DeletePostHandler))
	mux.Handle("POST /posts/{postID}/like", protect(h.LikePostHandler))
	mux.Handle("DELETE /posts/{postID}/like", protect(h.UnlikePostHandler))
	mux.Handle("POST /posts/{postID}/comments", protect(h.CreateCommentHandler))

	// Chat
	mux.Handle("POST /chat/rooms", protect(h.CreateChatRoomHandler))
	mux.Handle("GET /chat/rooms", protect(h.GetChatRoomsHandler))
	mux.Handle("GET /chat/rooms/{roomID}", protect(h.GetChatRoomHandler))
	mux.Handle("GET /chat/rooms/{roomID}/messages", protect(h.GetMessagesHandler))
	mux.Handle("POST /chat/rooms/{roomID}/messages", protect(h.SendMessageHandler))
	mux.Handle("GET /chat/rooms/{roomID}/files/{name}", protect(h.GetChatFileHandler))
	mux.Handle("POST /chat/rooms/{roomID}/read", protect(h.MarkMessagesReadHandler))

	// Notification routes
	mux.Handle("GET /notifications", protect(h.GetNotificationsHandler))
	mux.Handle("GET /notifications/unread-count", protect(h.GetUnreadCountHandler))
	mux.Handle("PATCH /notifications/{notificationID}/read", protect(h.MarkNotificationAsReadHandler))
	mux.Handle("POST /notifications/mark-all-read", protect(h.MarkAllNotificationsAsReadHandler))
	mux.Handle("DELETE /notifications/{notificationID}", protect(h.DeleteNotificationHandler))
}
