package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"eventure/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4096
	wsSendBuffer = 16

	notificationSnapshotLimit = 50
)

// Channels a client may subscribe to.
const (
	channelNotifications = "notifications"
	channelChatRooms     = "chat_rooms"
	channelMessages      = "messages"
)

// WSMessage is what clients send over the socket.
type WSMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	RoomID  string `json:"room_id,omitempty"`
}

var (
	errSlowClient   = errors.New("websocket send queue full")
	errClientClosed = errors.New("websocket client closed")
)

// wsClient is one socket. Everything written to it goes through the send
// queue, which writePump drains on its own goroutine. A client whose queue
// fills up is disconnected.
type wsClient struct {
	id     string
	userID string
	conn   *websocket.Conn

	send      chan interface{}
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(userID string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan interface{}, wsSendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) Send(msg realtime.Message) error {
	return c.enqueue(msg)
}

// enqueue never blocks.
func (c *wsClient) enqueue(v interface{}) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- v:
		return nil
	default:
		c.close()
		return errSlowClient
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump owns all writes to conn. It closes conn on exit, which ends the
// read loop.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case v := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(v); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return h.allowedOrigins[origin]
}

// WebSocketHandler upgrades the connection and serves realtime
// subscriptions for the signed-in user.
// GET /ws
func (h *Handler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := newWSClient(userID, conn)
	logger := h.logger.With(zap.String("user_id", userID), zap.String("conn_id", client.id))
	logger.Debug("websocket connected")

	pumpDone := make(chan struct{})
	go func() {
		client.writePump()
		close(pumpDone)
	}()

	// The request context ends when the handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.hub.UnsubscribeAll(client.id)
		client.close()
		<-pumpDone
		logger.Debug("websocket disconnected")
	}()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	if err := client.enqueue(map[string]string{"type": "connected"}); err != nil {
		return
	}

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			h.subscribe(ctx, client, msg)
		case "unsubscribe":
			if topic, ok := h.topicFor(client, msg); ok {
				h.hub.Unsubscribe(topic, client.id)
			}
		case "ping":
			client.enqueue(map[string]string{"type": "pong"})
		default:
			client.enqueue(realtime.Message{Type: realtime.TypeError, Data: "unknown message type"})
		}
	}
}

func (h *Handler) topicFor(c *wsClient, msg WSMessage) (realtime.Topic, bool) {
	switch msg.Channel {
	case channelNotifications:
		return realtime.NotificationsTopic(c.userID), true
	case channelChatRooms:
		return realtime.ChatRoomsTopic(c.userID), true
	case channelMessages:
		if msg.RoomID == "" {
			return "", false
		}
		return realtime.MessagesTopic(msg.RoomID), true
	}
	return "", false
}

func (h *Handler) subscribe(ctx context.Context, c *wsClient, msg WSMessage) {
	topic, ok := h.topicFor(c, msg)
	if !ok {
		c.enqueue(realtime.Message{Type: realtime.TypeError, Data: "unknown channel"})
		return
	}

	var load realtime.Loader
	switch msg.Channel {
	case channelNotifications:
		load = func(ctx context.Context) (interface{}, error) {
			return h.notifications.GetUserNotifications(ctx, c.userID, notificationSnapshotLimit)
		}
	case channelChatRooms:
		load = func(ctx context.Context) (interface{}, error) {
			return h.chat.GetUserChatRooms(ctx, c.userID)
		}
	case channelMessages:
		if _, err := h.chat.GetChatRoom(ctx, msg.RoomID, c.userID); err != nil {
			c.enqueue(realtime.Message{Type: realtime.TypeError, Topic: topic, Data: "cannot subscribe to this room"})
			return
		}
		roomID := msg.RoomID
		load = func(ctx context.Context) (interface{}, error) {
			return h.chat.GetChatMessages(ctx, roomID, c.userID)
		}
	}

	if err := h.hub.Subscribe(ctx, topic, c, load); err != nil {
		h.logger.Debug("subscribe failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}
