package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

const (
	eventBufferSize = 256
	writeWait       = 10 * time.Second
)

// Event is a keyspace change pushed to /events subscribers
type Event struct {
	Event string `json:"event"` // "set" or "del"
	Key   string `json:"key"`
	Type  string `json:"type,omitempty"`
}

// EventHub fans keyspace changes out to websocket subscribers. It
// implements storage.StorageObserver.
//
// Slow subscribers miss events instead of blocking writers.
type EventHub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan Event]struct{})}
}

func (h *EventHub) OnKeySet(key string, valueType storage.ValueType) {
	h.publish(Event{Event: "set", Key: key, Type: valueType.String()})
}

func (h *EventHub) OnKeyDeleted(key string) {
	h.publish(Event{Event: "del", Key: key})
}

func (h *EventHub) OnKeyAccessed(key string) {}

func (h *EventHub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The channel is closed by the
// returned cancel func or by Close.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Subscribers returns the number of live subscribers
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		return
	}
	defer conn.Close()

	events, cancel := a.events.Subscribe()
	defer cancel()

	// Reading is required to notice the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
