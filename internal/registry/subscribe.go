// ============================================================================
// sysmasterd Unit Registry
// ============================================================================
//
// Package: internal/registry
// File: subscribe.go
// Purpose: Fan-out notification when a unit is added, removed, or changes
//          LoadState/ActiveState. No package in this tree subscribes;
//          only the registry's own tests call Subscribe.
//
// Grounded on internal/worker.Pool's result-channel discipline: every
// subscriber gets its own buffered channel, and a full channel means a slow
// subscriber drops its own events rather than stalling the publisher
// (the same non-blocking-send tradeoff worker_pool.go's ackLoop accepts for
// resultCh backpressure).
//
// ============================================================================

package registry

import "sync"

// EventKind is the coarse category of a registry event.
type EventKind string

const (
	EventAdded         EventKind = "added"
	EventRemoved       EventKind = "removed"
	EventLoadChanged   EventKind = "load-changed"
	EventActiveChanged EventKind = "active-changed"
)

// Event is one registry notification.
type Event struct {
	Kind   EventKind
	UnitID string
}

const subscriberBuffer = 64

type subscriptions struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newSubscriptions() *subscriptions {
	return &subscriptions{subs: make(map[int]chan Event)}
}

func (s *subscriptions) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; drop rather than block the registry
		}
	}
}

// Subscribe returns a channel that receives every future registry event, and
// an unsubscribe func that releases it. The channel is closed by unsubscribe,
// never by the registry itself.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	r.subs.mu.Lock()
	defer r.subs.mu.Unlock()

	id := r.subs.next
	r.subs.next++
	ch := make(chan Event, subscriberBuffer)
	r.subs.subs[id] = ch

	unsubscribe := func() {
		r.subs.mu.Lock()
		defer r.subs.mu.Unlock()
		if _, ok := r.subs.subs[id]; ok {
			delete(r.subs.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// PublishActiveChanged notifies subscribers that name's ActiveState changed.
// Called by internal/lifecycle after a successful transition.
func (r *Registry) PublishActiveChanged(name string) {
	r.subs.publish(Event{Kind: EventActiveChanged, UnitID: name})
}

// PublishLoadChanged notifies subscribers that name's LoadState changed.
func (r *Registry) PublishLoadChanged(name string) {
	r.subs.publish(Event{Kind: EventLoadChanged, UnitID: name})
}
