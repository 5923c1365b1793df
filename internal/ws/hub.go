package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/lanemc/observability-kit/internal/store"
)

// Observer abstracts a streaming client.
type Observer interface {
	Send([]byte) error
	Close()
}

// Envelope is the wire frame delivered to every observer.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans telemetry events out to a single set of observers. Delivery is
// synchronous under the hub lock so observers see events in publication
// order. An observer whose Send fails is closed and removed; the rest of
// the set is unaffected.
type Hub struct {
	mu        sync.Mutex
	observers map[Observer]struct{}
	log       *slog.Logger
}

// NewHub creates an initialized Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger != nil {
		logger = logger.With("component", "hub")
	}
	return &Hub{
		observers: make(map[Observer]struct{}),
		log:       logger,
	}
}

// Subscribe delivers the initial frames to the observer and then joins it
// to the set. Callers build the snapshot frames before calling so the hub
// never reaches back into the store while holding its own lock. If an
// initial frame cannot be delivered the observer is closed and not added.
func (h *Hub) Subscribe(obs Observer, initial ...[]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, frame := range initial {
		if err := obs.Send(frame); err != nil {
			h.warn("snapshot delivery failed", err)
			obs.Close()
			return
		}
	}
	h.observers[obs] = struct{}{}
}

// Unsubscribe removes an observer. No-op when the observer is unknown.
func (h *Hub) Unsubscribe(obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[obs]; !ok {
		return
	}
	delete(h.observers, obs)
	obs.Close()
}

// Notify implements store.Notifier: the event is wrapped in an Envelope
// and broadcast to every observer.
func (h *Hub) Notify(event store.Event) {
	payload, err := json.Marshal(Envelope{Type: event.Type, Data: event.Data})
	if err != nil {
		h.warn("event marshal failed", err)
		return
	}
	h.Broadcast(payload)
}

// Broadcast sends payload to all observers, dropping only the ones whose
// Send fails.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for obs := range h.observers {
		if err := obs.Send(payload); err != nil {
			h.warn("observer send failed", err)
			obs.Close()
			delete(h.observers, obs)
		}
	}
}

// Count reports the number of attached observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// CloseAll disconnects every observer, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for obs := range h.observers {
		obs.Close()
		delete(h.observers, obs)
	}
}

func (h *Hub) warn(msg string, err error) {
	if h.log != nil {
		h.log.Warn(msg, "error", err)
	}
}
