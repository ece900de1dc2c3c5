// Package broadcast fans committed session and activity events out to live
// subscribers. One ordered input bus feeds independent bounded per-viewer
// queues: a slow viewer overflows its own queue and gets dropped, and
// neither the publisher nor any other viewer ever waits on it.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/logging"
	"github.com/ksred/claude-session-manager/internal/metrics"
)

// busBuffer sizes the ordered input bus. The run loop drains it without
// blocking, so it only needs to absorb short publish bursts.
const busBuffer = 256

// Subscriber is one attached viewer. Events arrive on C until the hub
// drops the viewer or closes; the channel is closed in both cases.
type Subscriber struct {
	ID    string
	Scope string // session ID filter, empty for all sessions

	ch chan domain.Event
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan domain.Event {
	return s.ch
}

// Hub implements domain.Notifier with per-session sequence numbering.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber

	events chan domain.Event
	seqs   map[string]uint64 // owned by the run loop
	buffer int

	done      chan struct{}
	closeOnce sync.Once

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

var _ domain.Notifier = (*Hub)(nil)

// New creates a hub whose per-viewer queues hold subscriberBuffer events,
// and starts its dispatch loop.
func New(subscriberBuffer int) *Hub {
	if subscriberBuffer <= 0 {
		subscriberBuffer = 64
	}

	h := &Hub{
		subs:   make(map[string]*Subscriber),
		events: make(chan domain.Event, busBuffer),
		seqs:   make(map[string]uint64),
		buffer: subscriberBuffer,
		done:   make(chan struct{}),
	}

	logging.SafeGo("broadcast", h.run)
	return h
}

// Publish enqueues an event onto the ordered bus. Callers publish while
// still holding the per-session lock, so bus order is commit order; the
// enqueue itself never waits on viewers.
func (h *Hub) Publish(ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	select {
	case h.events <- ev:
		h.published.Add(1)
		metrics.Global().RecordEventPublished()
	case <-h.done:
	}
}

// Subscribe attaches a viewer, optionally scoped to one session. Events
// without a session (global errors) reach every viewer regardless of
// scope.
func (h *Hub) Subscribe(scope string) *Subscriber {
	sub := &Subscriber{
		ID:    uuid.NewString(),
		Scope: scope,
		ch:    make(chan domain.Event, h.buffer),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	return sub
}

// Unsubscribe detaches a viewer and closes its channel. Safe to call for
// an already-removed viewer.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.mu.Unlock()
}

// SubscriberCount returns the number of attached viewers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns published, delivered, and dropped-viewer counts.
func (h *Hub) Stats() (published, delivered, dropped int64) {
	return h.published.Load(), h.delivered.Load(), h.dropped.Load()
}

// Close shuts the hub down and closes every subscriber channel.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for id, sub := range h.subs {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	})
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

// dispatch assigns the per-entity sequence number and offers the event to
// every matching viewer. Sends are non-blocking: a full queue marks the
// viewer for removal instead of stalling the loop.
func (h *Hub) dispatch(ev domain.Event) {
	h.seqs[ev.SessionID]++
	ev.Seq = h.seqs[ev.SessionID]

	var overflowed []*Subscriber

	h.mu.RLock()
	for _, sub := range h.subs {
		if sub.Scope != "" && ev.SessionID != "" && sub.Scope != ev.SessionID {
			continue
		}
		select {
		case sub.ch <- ev:
			h.delivered.Add(1)
			metrics.Global().RecordEventDelivered()
		default:
			overflowed = append(overflowed, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range overflowed {
		h.dropped.Add(1)
		metrics.Global().RecordSubscriberDropped()
		logging.DropEvent(sub.ID, ev.SessionID, len(sub.ch))
		h.Unsubscribe(sub.ID)
	}
}
