// Package events fans refresh notices out to connected clients so they can
// reload a collection before their next periodic sync.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/saba/internal/eventstream"
	"github.com/ent0n29/saba/internal/observability"
)

type Kind string

const (
	KindMemories      Kind = "memories"
	KindConversations Kind = "conversations"
	KindTasks         Kind = "tasks"
)

// Notice is the only message sent to clients.
type Notice struct {
	Type string    `json:"type"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
}

const subscriberBuffer = 32

type subscriber struct {
	userID string
	ch     chan Notice
}

// Hub tracks subscribers per user. Delivery is best effort: a subscriber
// whose buffer is full misses the notice.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	nextID  int
	metrics *observability.Metrics
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{subs: make(map[int]subscriber), metrics: metrics}
}

// Subscribe registers a subscriber for userID. The returned func removes it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan Notice, func()) {
	ch := make(chan Notice, subscriberBuffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscriber{userID: userID, ch: ch}
	h.mu.Unlock()
	h.metrics.SubscriberConnected()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
			h.metrics.SubscriberDisconnected()
		})
	}
}

// Publish notifies every subscriber of userID that kind changed.
func (h *Hub) Publish(userID string, kind Kind) {
	h.send(func(s subscriber) bool { return s.userID == userID }, kind)
}

// Broadcast notifies every subscriber that kind changed.
func (h *Hub) Broadcast(kind Kind) {
	h.send(func(subscriber) bool { return true }, kind)
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) send(match func(subscriber) bool, kind Kind) {
	n := Notice{Type: "refresh", Kind: kind, At: time.Now().UTC()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !match(s) {
			continue
		}
		select {
		case s.ch <- n:
		default:
		}
	}
}

// PublishReminder lets the hub sit behind an eventstream.Fanout so fired
// reminders refresh the owner's task list.
func (h *Hub) PublishReminder(_ context.Context, event *eventstream.ReminderEvent) error {
	if event == nil {
		return eventstream.ErrNilReminderEvent
	}
	h.Publish(event.UserID, KindTasks)
	return nil
}

// Close is a no-op; subscribers are released by their connections.
func (h *Hub) Close() error {
	return nil
}
