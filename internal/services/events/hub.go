// Package events fans session events out to browser subscribers.
package events

import (
	"sync"
	"time"
)

// Type names the kind of event delivered to subscribers
type Type string

const (
	TypeState  Type = "state"
	TypeStatus Type = "status"
	TypeSignal Type = "signal"
	TypeAlert  Type = "alert"
	TypeUpload Type = "upload"
)

// Event is one message on the hub. Data is JSON-serialisable.
type Event struct {
	Type      Type        `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// SignalData is carried by TypeSignal events
type SignalData struct {
	NoSignal  bool    `json:"no_signal"`
	Luminance float64 `json:"luminance"`
	Message   string  `json:"message,omitempty"`
}

// Hub delivers events to every subscriber without blocking the publisher.
// Subscribers that fall behind lose events.
type Hub struct {
	bufferSize int

	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		bufferSize: bufferSize,
		subs:       make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes it
// and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.bufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
