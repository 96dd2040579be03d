package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/lyftr/internal/ingest"
)

// Event is one published notification. Data is single-line JSON.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// IngestData is the payload of ingest.* events.
type IngestData struct {
	MessageID string `json:"message_id,omitempty"`
	Result    string `json:"result"`
	Dup       bool   `json:"dup"`
	Conflict  bool   `json:"conflict,omitempty"`
}

// TypePrefixIngest prefixes every ingestion event type, e.g. "ingest.created".
const TypePrefixIngest = "ingest."

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
	closed    bool
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

func (h *Hub) Publish(eventType string, data any) {
	h.publishAt(eventType, data, time.Now().UTC())
}

func (h *Hub) publishAt(eventType string, data any, at time.Time) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   at,
		Data: payload,
	}
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Slow subscribers drop events rather than block ingestion.
		select {
		case ch <- ev:
		default:
		}
	}
}

// RecordIngest publishes an ingestion outcome.
func (h *Hub) RecordIngest(_ context.Context, ev ingest.Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	h.publishAt(TypePrefixIngest+string(ev.Outcome), IngestData{
		MessageID: ev.MessageID,
		Result:    string(ev.Outcome),
		Dup:       ev.Duplicate,
		Conflict:  ev.Conflict,
	}, at)
}

// Subscribe registers a listener. The returned cancel func is idempotent.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 128)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextSubID
	h.nextSubID++
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Close ends every subscription; later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
