package api

import (
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"eventure/models"
)

// CreateChatRoomHandler opens the caller's room with another user, reusing
// an existing one.
// POST /chat/rooms
func (h *Handler) CreateChatRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChatRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	room, err := h.chat.CreateChatRoom(r.Context(), currentUserID(r), req.ParticipantID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// GetChatRoomsHandler lists the caller's rooms, most recent first.
// GET /chat/rooms
func (h *Handler) GetChatRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chat.GetUserChatRooms(r.Context(), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// GetChatRoomHandler returns one room.
// GET /chat/rooms/{roomID}
func (h *Handler) GetChatRoomHandler(w http.ResponseWriter, r *http.Request) {
	room, err := h.chat.GetChatRoom(r.Context(), r.PathValue("roomID"), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// GetMessagesHandler returns a room's messages, oldest first.
// GET /chat/rooms/{roomID}/messages
func (h *Handler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chat.GetChatMessages(r.Context(), r.PathValue("roomID"), currentUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// SendMessageHandler accepts a JSON body or a multipart form with "text" and
// an optional "file".
// POST /chat/rooms/{roomID}/messages
func (h *Handler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var text string
	var file *models.Upload

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			http.Error(w, "Error parsing multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		text = r.FormValue("text")

		up, f, err := formUpload(r, "file")
		if err != nil {
			http.Error(w, "Error retrieving file: "+err.Error(), http.StatusBadRequest)
			return
		}
		if f != nil {
			defer f.Close()
		}
		file = up
	} else {
		var req models.SendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		text = req.Text
	}

	msg, err := h.chat.SendMessage(r.Context(), r.PathValue("roomID"), currentUserID(r), text, file)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// GetChatFileHandler streams a chat attachment to a room participant.
// GET /chat/rooms/{roomID}/files/{name}
func (h *Handler) GetChatFileHandler(w http.ResponseWriter, r *http.Request) {
	f, err := h.chat.OpenChatFile(r.Context(), r.PathValue("roomID"), currentUserID(r), r.PathValue("name"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer f.Body.Close()

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f.Body); err != nil {
		h.logger.Warn("error streaming chat file", zap.String("room_id", r.PathValue("roomID")), zap.Error(err))
	}
}

// MarkMessagesReadHandler marks messages sent to the caller as read.
// POST /chat/rooms/{roomID}/read
func (h *Handler) MarkMessagesReadHandler(w http.ResponseWriter, r *http.Request) {
	var req models.MarkReadRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	n, err := h.chat.MarkMessagesAsRead(r.Context(), r.PathValue("roomID"), currentUserID(r), req.MessageIDs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
