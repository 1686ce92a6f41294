package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventure/database"
	"eventure/events"
	"eventure/mailer"
	"eventure/middleware"
	"eventure/models"
	"eventure/realtime"
	"eventure/services"
	"eventure/storage"
	"eventure/util"
)

type testServer struct {
	*httptest.Server
	mail *mailer.Log
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mediaDir := t.TempDir()
	blobs, err := storage.NewLocal(mediaDir, "/media")
	require.NoError(t, err)

	mail := mailer.NewLog(logger, mailer.KeepLast())
	hub := realtime.NewHub(logger)
	sessions := util.NewMemorySessionStore(time.Hour)

	notifications := services.NewNotificationService(db, hub, events.Noop{}, logger)
	profiles := services.NewProfileService(db, blobs, logger)
	posts := services.NewPostService(db, blobs, notifications, logger)
	chat := services.NewChatService(db, blobs, notifications, hub, logger)
	auth, err := services.NewAuthService(db, profiles, mail, services.AuthOptions{
		ResetSecret: "api-test",
		ResetURL:    "http://localhost:3000/reset-password",
	}, logger)
	require.NoError(t, err)

	h := NewHandler(Dependencies{
		Auth:          auth,
		Profiles:      profiles,
		Posts:         posts,
		Chat:          chat,
		Notifications: notifications,
		Sessions:      sessions,
		Hub:           hub,
		Logger:        logger,
		SessionTTL:    time.Hour,
	})

	mux := http.NewServeMux()
	h.Routes(mux, middleware.NewAuth(sessions, auth, logger), nil)
	mux.Handle("GET /media/", storage.MediaHandler("/media", mediaDir))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, mail: mail}
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
	jar  http.CookieJar
}

func (s *testServer) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: s.URL, http: &http.Client{Jar: jar}, jar: jar}
}

func (c *client) do(method, path string, body interface{}) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) decode(resp *http.Response, status int, v interface{}) {
	c.t.Helper()
	if !assert.Equal(c.t, status, resp.StatusCode) {
		b, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("unexpected body: %s", b)
	}
	if v != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(v))
	}
}

func (c *client) signup(name string, role models.Role) models.UserResponse {
	c.t.Helper()
	var u models.UserResponse
	c.decode(c.do("POST", "/signup", models.RegisterRequest{
		Email:       name + "@example.com",
		Password:    "secret123",
		DisplayName: name,
		Role:        role,
	}), http.StatusCreated, &u)
	return u
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)
	c := srv.client(t)

	c.decode(c.do("GET", "/checkAuth", nil), http.StatusUnauthorized, nil)

	u := c.signup("ada", models.RoleOrganizer)
	assert.Equal(t, models.RoleOrganizer, u.Role)

	c.decode(c.do("GET", "/checkAuth", nil), http.StatusOK, nil)

	var me models.Profile
	c.decode(c.do("GET", "/me", nil), http.StatusOK, &me)
	assert.Equal(t, u.ID, me.ID)
	assert.NotNil(t, me.OrganizerDetails)
	assert.Nil(t, me.SponsorDetails)

	other := srv.client(t)
	other.decode(other.do("POST", "/signup", models.RegisterRequest{
		Email: "ada@example.com", Password: "secret123", DisplayName: "dup", Role: models.RoleSponsor,
	}), http.StatusConflict, nil)

	c.decode(c.do("POST", "/logout", nil), http.StatusOK, nil)
	c.decode(c.do("GET", "/me", nil), http.StatusUnauthorized, nil)

	c.decode(c.do("POST", "/login", models.LoginRequest{Email: "ada@example.com", Password: "wrong"}), http.StatusUnauthorized, nil)
	c.decode(c.do("POST", "/login", models.LoginRequest{Email: "ada@example.com", Password: "secret123"}), http.StatusOK, nil)
	c.decode(c.do("GET", "/me", nil), http.StatusOK, nil)
}

func TestPasswordResetFlow(t *testing.T) {
	srv := newTestServer(t)
	c := srv.client(t)
	c.signup("ada", models.RoleOrganizer)

	c.decode(c.do("POST", "/password-reset", models.PasswordResetRequest{Email: "ada@example.com"}), http.StatusAccepted, nil)
	c.decode(c.do("POST", "/password-reset", models.PasswordResetRequest{Email: "ghost@example.com"}), http.StatusAccepted, nil)

	email, ok := srv.mail.Last("ada@example.com")
	require.True(t, ok)
	i := strings.Index(email.TextBody, "token=")
	require.GreaterOrEqual(t, i, 0)
	rest := email.TextBody[i+len("token="):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	token, err := url.QueryUnescape(rest)
	require.NoError(t, err)

	c.decode(c.do("POST", "/password-reset/confirm", models.PasswordResetConfirmRequest{Token: "junk", Password: "newsecret"}), http.StatusBadRequest, nil)
	c.decode(c.do("POST", "/password-reset/confirm", models.PasswordResetConfirmRequest{Token: token, Password: "newsecret"}), http.StatusOK, nil)

	c.decode(c.do("POST", "/login", models.LoginRequest{Email: "ada@example.com", Password: "newsecret"}), http.StatusOK, nil)
}

func TestPostLikeCommentFlow(t *testing.T) {
	srv := newTestServer(t)
	ada := srv.client(t)
	acme := srv.client(t)
	adaUser := ada.signup("ada", models.RoleOrganizer)
	acme.signup("acme", models.RoleSponsor)

	var post models.Post
	ada.decode(ada.do("POST", "/posts", models.CreatePostRequest{Content: "Sponsors wanted"}), http.StatusCreated, &post)
	assert.Equal(t, adaUser.ID, post.UserID)

	ada.decode(ada.do("POST", "/posts", models.CreatePostRequest{Content: "  "}), http.StatusBadRequest, nil)

	var like models.LikeResponse
	acme.decode(acme.do("POST", "/posts/"+post.ID+"/like", nil), http.StatusOK, &like)
	assert.True(t, like.Liked)
	assert.Equal(t, 1, like.Likes)
	acme.decode(acme.do("POST", "/posts/"+post.ID+"/like", nil), http.StatusConflict, nil)

	var comment models.Comment
	acme.decode(acme.do("POST", "/posts/"+post.ID+"/comments", models.CreateCommentRequest{Content: "Count us in"}), http.StatusCreated, &comment)
	assert.Equal(t, "acme", comment.DisplayName)

	var feed []models.Post
	acme.decode(acme.do("GET", "/posts?limit=5", nil), http.StatusOK, &feed)
	require.Len(t, feed, 1)
	assert.Equal(t, post.ID, feed[0].ID)
	assert.Len(t, feed[0].Comments, 1)

	acme.decode(acme.do("PUT", "/posts/"+post.ID, models.UpdatePostRequest{Content: "mine now"}), http.StatusForbidden, nil)
	acme.decode(acme.do("DELETE", "/posts/"+post.ID, nil), http.StatusForbidden, nil)

	var count models.NotificationCount
	ada.decode(ada.do("GET", "/notifications/unread-count", nil), http.StatusOK, &count)
	assert.Equal(t, 2, count.UnreadCount)

	var list []models.Notification
	ada.decode(ada.do("GET", "/notifications", nil), http.StatusOK, &list)
	require.Len(t, list, 2)
	assert.Equal(t, models.NotificationComment, list[0].Type)

	acme.decode(acme.do("PATCH", "/notifications/"+list[0].ID+"/read", nil), http.StatusForbidden, nil)
	ada.decode(ada.do("PATCH", "/notifications/"+list[0].ID+"/read", nil), http.StatusOK, nil)
	ada.decode(ada.do("DELETE", "/notifications/"+list[1].ID, nil), http.StatusNoContent, nil)

	ada.decode(ada.do("GET", "/notifications/unread-count", nil), http.StatusOK, &count)
	assert.Zero(t, count.UnreadCount)

	acme.decode(acme.do("DELETE", "/posts/"+post.ID+"/like", nil), http.StatusOK, &like)
	assert.False(t, like.Liked)
	acme.decode(acme.do("DELETE", "/posts/"+post.ID+"/like", nil), http.StatusConflict, nil)

	ada.decode(ada.do("DELETE", "/posts/"+post.ID, nil), http.StatusOK, nil)
	ada.decode(ada.do("GET", "/posts/"+post.ID, nil), http.StatusNotFound, nil)
}

func TestCreatePostMultipart(t *testing.T) {
	srv := newTestServer(t)
	ada := srv.client(t)
	ada.signup("ada", models.RoleOrganizer)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("content", "Venue photo"))
	part, err := mw.CreateFormFile("media", "venue.png")
	require.NoError(t, err)
	part.Write([]byte("png"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", srv.URL+"/posts", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := ada.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// CreateFormFile labels parts application/octet-stream.
	ada.decode(resp, http.StatusBadRequest, nil)
}

func TestProfileRoutes(t *testing.T) {
	srv := newTestServer(t)
	ada := srv.client(t)
	acme := srv.client(t)
	adaUser := ada.signup("ada", models.RoleOrganizer)
	acme.signup("acme", models.RoleSponsor)

	about := "Tech meetups"
	var p models.Profile
	ada.decode(ada.do("PUT", "/profile", models.UpdateProfileRequest{About: &about}), http.StatusOK, &p)
	assert.Equal(t, about, p.About)

	past := "DevFest"
	ada.decode(ada.do("PUT", "/profile/organizer", models.UpdateOrganizerRequest{PastEvents: &past}), http.StatusOK, nil)
	acme.decode(acme.do("PUT", "/profile/organizer", models.UpdateOrganizerRequest{PastEvents: &past}), http.StatusForbidden, nil)

	var ev models.UpcomingEvent
	ada.decode(ada.do("POST", "/profile/events", models.UpcomingEvent{Name: "GoConf"}), http.StatusCreated, &ev)
	ada.decode(ada.do("DELETE", "/profile/events/"+ev.ID, nil), http.StatusNoContent, nil)
	ada.decode(ada.do("DELETE", "/profile/events/"+ev.ID, nil), http.StatusNotFound, nil)

	acme.decode(acme.do("GET", "/users/"+adaUser.ID, nil), http.StatusOK, &p)
	require.NotNil(t, p.OrganizerDetails)
	assert.Equal(t, "DevFest", p.PastEvents)

	var found []models.Profile
	acme.decode(acme.do("GET", "/search?q=meetups&role=organizer", nil), http.StatusOK, &found)
	require.Len(t, found, 1)
	assert.Equal(t, adaUser.ID, found[0].ID)

	acme.decode(acme.do("GET", "/users/missing", nil), http.StatusNotFound, nil)
}

func TestChatFlowAndRealtime(t *testing.T) {
	srv := newTestServer(t)
	ada := srv.client(t)
	acme := srv.client(t)
	eve := srv.client(t)
	ada.signup("ada", models.RoleOrganizer)
	acmeUser := acme.signup("acme", models.RoleSponsor)
	eve.signup("eve", models.RoleSponsor)

	var room models.ChatRoom
	ada.decode(ada.do("POST", "/chat/rooms", models.CreateChatRoomRequest{ParticipantID: acmeUser.ID}), http.StatusOK, &room)
	assert.Equal(t, "acme", room.Name)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dialer := websocket.Dialer{Jar: acme.jar, HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello map[string]interface{}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["type"])

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "subscribe", Channel: channelMessages, RoomID: room.ID}))
	var snap struct {
		Type  string               `json:"type"`
		Topic string               `json:"topic"`
		Data  []models.ChatMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, realtime.TypeSnapshot, snap.Type)
	assert.Empty(t, snap.Data)

	var msg models.ChatMessage
	ada.decode(ada.do("POST", "/chat/rooms/"+room.ID+"/messages", models.SendMessageRequest{Text: "Hello"}), http.StatusCreated, &msg)

	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, string(realtime.MessagesTopic(room.ID)), snap.Topic)
	require.Len(t, snap.Data, 1)
	assert.Equal(t, msg.ID, snap.Data[0].ID)

	eve.decode(eve.do("GET", "/chat/rooms/"+room.ID+"/messages", nil), http.StatusForbidden, nil)
	eve.decode(eve.do("POST", "/chat/rooms/"+room.ID+"/messages", models.SendMessageRequest{Text: "hi"}), http.StatusForbidden, nil)

	var rooms []models.ChatRoom
	acme.decode(acme.do("GET", "/chat/rooms", nil), http.StatusOK, &rooms)
	require.Len(t, rooms, 1)
	assert.Equal(t, "ada", rooms[0].Name)
	assert.Equal(t, 1, rooms[0].UnreadCount)

	var updated map[string]int64
	acme.decode(acme.do("POST", "/chat/rooms/"+room.ID+"/read", models.MarkReadRequest{MessageIDs: []string{msg.ID}}), http.StatusOK, &updated)
	assert.Equal(t, int64(1), updated["updated"])

	acme.decode(acme.do("GET", "/chat/rooms/"+room.ID, nil), http.StatusOK, &room)
	assert.Zero(t, room.UnreadCount)
}

func TestWebSocketRejectsForeignRoom(t *testing.T) {
	srv := newTestServer(t)
	ada := srv.client(t)
	acme := srv.client(t)
	eve := srv.client(t)
	ada.signup("ada", models.RoleOrganizer)
	acmeUser := acme.signup("acme", models.RoleSponsor)
	eve.signup("eve", models.RoleSponsor)

	var room models.ChatRoom
	ada.decode(ada.do("POST", "/chat/rooms", models.CreateChatRoomRequest{ParticipantID: acmeUser.ID}), http.StatusOK, &room)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	dialer := websocket.Dialer{Jar: eve.jar}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var m map[string]interface{}
	require.NoError(t, conn.ReadJSON(&m))
	require.NoError(t, conn.WriteJSON(WSMessage{Type: "subscribe", Channel: channelMessages, RoomID: room.ID}))
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, realtime.TypeError, m["type"])

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "pong", m["type"])
}

func TestChatFileRequiresParticipant(t *testing.T) {
	srv := newTestServer(t)
	ada := srv.client(t)
	acme := srv.client(t)
	eve := srv.client(t)
	ada.signup("ada", models.RoleOrganizer)
	acmeUser := acme.signup("acme", models.RoleSponsor)
	eve.signup("eve", models.RoleSponsor)

	var room models.ChatRoom
	ada.decode(ada.do("POST", "/chat/rooms", models.CreateChatRoomRequest{ParticipantID: acmeUser.ID}), http.StatusOK, &room)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", "signed contract"))
	part, err := mw.CreateFormFile("file", "contract #1.pdf")
	require.NoError(t, err)
	part.Write([]byte("pdf"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", srv.URL+"/chat/rooms/"+room.ID+"/messages", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := ada.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var msg models.ChatMessage
	ada.decode(resp, http.StatusCreated, &msg)
	require.True(t, strings.HasPrefix(msg.FileURL, "/chat/rooms/"+room.ID+"/files/"))

	resp = acme.do("GET", msg.FileURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(body))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	eve.decode(eve.do("GET", msg.FileURL, nil), http.StatusForbidden, nil)

	anon, err := http.Get(srv.URL + msg.FileURL)
	require.NoError(t, err)
	defer anon.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, anon.StatusCode)

	acme.decode(acme.do("GET", "/chat/rooms/"+room.ID+"/files/1_other.pdf", nil), http.StatusNotFound, nil)

	// Chat files are never reachable through the public media prefix.
	acme.decode(acme.do("GET", "/media/chatFiles/"+room.ID+"/", nil), http.StatusNotFound, nil)
}
