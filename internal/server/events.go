package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one entry on the admin feed: a log line or a completion callback.
type Event struct {
	Type    string    `json:"type"`
	Message string    `json:"message,omitempty"`
	Tag     string    `json:"tag,omitempty"`
	Time    time.Time `json:"time"`
}

const subscriberBuffer = 64

// EventHub fans events out to admin feed subscribers. A subscriber that
// cannot keep up loses events rather than blocking the publisher.
type EventHub struct {
	subscribers map[string]chan Event // subscriptionID → feed
	mu          sync.RWMutex
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[string]chan Event),
	}
}

func (h *EventHub) Subscribe() (string, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, subscriberBuffer)
	h.subscribers[id] = ch
	return id, ch
}

func (h *EventHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

func (h *EventHub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Count returns the number of live subscribers.
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// LogSink wraps next so every line is also published to the feed.
func (h *EventHub) LogSink(next LogFunc) LogFunc {
	return func(message string) {
		if next != nil {
			next(message)
		}
		h.Publish(Event{Type: "log", Message: message})
	}
}

// CallbackSink wraps next so every completion callback is also published.
func (h *EventHub) CallbackSink(next CallbackFunc) CallbackFunc {
	return func(tag string) {
		if next != nil {
			next(tag)
		}
		h.Publish(Event{Type: "callback", Tag: tag})
	}
}
