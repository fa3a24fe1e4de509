package stream

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is one message on the live feed: breaking alerts and content
// lifecycle notices pushed to connected readers.
type Event struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, data interface{}) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano), Data: raw}
}

// Alert is the breaking-alert payload carried by "alert" events: the
// banner the site pushes when a situation develops faster than the
// editorial pipeline.
type Alert struct {
	Title    string `json:"title"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity"`
	Region   string `json:"region,omitempty"`
}

// NewAlertEvent wraps a breaking alert in the event envelope.
func NewAlertEvent(a Alert) Event {
	return NewEvent("alert", a)
}

// Hub fans events out to subscribers. Slow subscribers drop events
// rather than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if exists {
		close(ch)
	}
}

func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
