// Package hub fans change notifications out to connected viewers.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"deckview/internal/logging"
	"deckview/internal/metrics"
)

// Event types.
const (
	EventTreeChanged = "tree_changed"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// Event is one change notification.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// TreeChanged returns a tree_changed event stamped now.
func TreeChanged() Event {
	return Event{Type: EventTreeChanged, At: time.Now()}
}

// Subscription receives events until it is closed.
type Subscription struct {
	ID string

	hub       *Hub
	events    chan Event
	closeOnce sync.Once
}

// Events returns the receive channel. It is closed on unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub is a publish/subscribe point for change notifications.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	log logging.Logger
}

// New creates a Hub whose subscribers buffer up to buffer events.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]*Subscription),
		log:    logging.Component("hub"),
	}
}

// Subscribe registers a receiver. The subscription ends when ctx is done,
// Close is called, or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		hub:    h,
		events: make(chan Event, h.buffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.closeOnce.Do(func() { close(s.events) })
		return s
	}
	h.subs[s.ID] = s
	n := len(h.subs)
	h.mu.Unlock()

	metrics.HubSubscribers.Set(float64(n))
	h.log.Debug("Subscriber %s connected (%d total)", s.ID, n)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	delete(h.subs, s.ID)
	n := len(h.subs)
	// Closing under the lock keeps Publish from sending on a closed channel.
	s.closeOnce.Do(func() { close(s.events) })
	h.mu.Unlock()

	if ok {
		metrics.HubSubscribers.Set(float64(n))
		h.log.Debug("Subscriber %s disconnected (%d left)", s.ID, n)
	}
}

// Publish delivers e to every subscriber without blocking. Subscribers whose
// buffer is full miss the event. It returns the number of deliveries.
func (h *Hub) Publish(e Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.HubEventsPublishedTotal.WithLabelValues(e.Type).Inc()

	delivered := 0
	for id, s := range h.subs {
		select {
		case s.events <- e:
			delivered++
		default:
			metrics.HubEventsDroppedTotal.Inc()
			h.log.Debug("Dropped %s for slow subscriber %s", e.Type, id)
		}
	}
	return delivered
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	for _, s := range subs {
		s.closeOnce.Do(func() { close(s.events) })
	}
	h.mu.Unlock()

	metrics.HubSubscribers.Set(0)
}
