package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Topic names a stream of snapshots a client can subscribe to.
type Topic string

// NotificationsTopic carries a user's notification list.
func NotificationsTopic(userID string) Topic { return Topic("notifications:" + userID) }

// ChatRoomsTopic carries a user's chat room list.
func ChatRoomsTopic(userID string) Topic { return Topic("chat_rooms:" + userID) }

// MessagesTopic carries the messages of one chat room.
func MessagesTopic(roomID string) Topic { return Topic("messages:" + roomID) }

// Message types sent to subscribers.
const (
	TypeSnapshot = "snapshot"
	TypeError    = "error"
)

// Message is what the hub writes to a subscriber.
type Message struct {
	Type  string      `json:"type"`
	Topic Topic       `json:"topic,omitempty"`
	Data  interface{} `json:"data"`
}

// Subscriber receives messages. Send must be safe for concurrent use and must
// not block on the network; Publish runs on the caller's goroutine.
type Subscriber interface {
	ID() string
	Send(msg Message) error
}

// Loader produces the current snapshot for one subscription.
type Loader func(ctx context.Context) (interface{}, error)

type subscription struct {
	sub  Subscriber
	load Loader
}

// Hub fans snapshot updates out to subscribed clients. Services call Publish
// after a change commits; every subscriber of the topic reloads and receives
// its full current view.
type Hub struct {
	mu     sync.RWMutex
	topics map[Topic]map[string]subscription
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		topics: make(map[Topic]map[string]subscription),
		logger: logger,
	}
}

// Subscribe registers sub on topic and immediately sends it the current
// snapshot. Subscribing twice replaces the earlier loader.
func (h *Hub) Subscribe(ctx context.Context, topic Topic, sub Subscriber, load Loader) error {
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]subscription)
		h.topics[topic] = subs
	}
	subs[sub.ID()] = subscription{sub: sub, load: load}
	h.mu.Unlock()

	h.logger.Debug("subscribed", zap.String("topic", string(topic)), zap.String("subscriber", sub.ID()))
	return h.push(ctx, topic, subscription{sub: sub, load: load})
}

// Unsubscribe removes sub from topic.
func (h *Hub) Unsubscribe(topic Topic, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(topic, subID)
}

// UnsubscribeAll removes sub from every topic, typically on disconnect.
func (h *Hub) UnsubscribeAll(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.topics {
		h.removeLocked(topic, subID)
	}
}

func (h *Hub) removeLocked(topic Topic, subID string) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Publish reloads and resends the snapshot for every subscriber of topic.
// Delivery failures are logged, never returned.
func (h *Hub) Publish(ctx context.Context, topic Topic) {
	h.mu.RLock()
	subs := make([]subscription, 0, len(h.topics[topic]))
	for _, s := range h.topics[topic] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if err := h.push(ctx, topic, s); err != nil {
			h.logger.Warn("failed to push snapshot",
				zap.String("topic", string(topic)),
				zap.String("subscriber", s.sub.ID()),
				zap.Error(err))
		}
	}
}

// SubscriberCount reports how many clients listen on topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) push(ctx context.Context, topic Topic, s subscription) error {
	data, err := s.load(ctx)
	if err != nil {
		h.logger.Error("failed to load snapshot", zap.String("topic", string(topic)), zap.Error(err))
		return s.sub.Send(Message{Type: TypeError, Topic: topic, Data: "failed to load " + string(topic)})
	}
	return s.sub.Send(Message{Type: TypeSnapshot, Topic: topic, Data: data})
}
