// Package bus is the in-process publish/subscribe channel that broadcasts
// record created/updated facts to every mounted view.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// EventKind distinguishes the two broadcast facts.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
)

// Event carries one record snapshot.
type Event struct {
	Kind   EventKind
	Record models.ImageRecord
}

// Handler receives events synchronously in the publisher's goroutine.
type Handler func(Event)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id      uint64
	bus     *Bus
	handler Handler
	active  atomic.Bool
}

// Unsubscribe removes the subscription. It is idempotent and safe to call from
// inside any handler, including this subscription's own.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.Swap(false) {
		return
	}
	s.bus.remove(s.id)
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}

// Bus fans events out to every registered subscriber. There is no event log:
// a subscriber only sees events published after it registered.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64
	closed bool
	logger *logging.Logger
}

// New creates an empty bus.
func New(logger *logging.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers h. Subscribing to a closed bus returns an inactive
// subscription.
func (b *Bus) Subscribe(h Handler) *Subscription {
	sub := &Subscription{bus: b, handler: h}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	sub.active.Store(true)
	b.subs = append(b.subs, sub)
	return sub
}

// Publish delivers e to a snapshot of the current subscribers, in
// registration order. Subscribers removed during delivery are skipped if they
// have not been reached yet.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*Subscription, len(b.subs))
	copy(targets, b.subs)
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.active.Load() {
			continue
		}
		b.deliver(sub, Event{Kind: e.Kind, Record: e.Record.Clone()})
	}
}

// PublishCreated broadcasts a newly uploaded record.
func (b *Bus) PublishCreated(rec models.ImageRecord) {
	b.Publish(Event{Kind: EventCreated, Record: rec})
}

// PublishUpdated broadcasts a newer snapshot of an existing record.
func (b *Bus) PublishUpdated(rec models.ImageRecord) {
	b.Publish(Event{Kind: EventUpdated, Record: rec})
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscriber. Later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		sub.active.Store(false)
	}
	b.subs = nil
	b.closed = true
}

func (b *Bus) deliver(sub *Subscription, e Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("Bus subscriber panicked", logging.WithFields(map[string]interface{}{
				"subscription": sub.id,
				"event":        string(e.Kind),
				"record_id":    e.Record.ID,
				"panic":        r,
			}))
		}
	}()
	sub.handler(e)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}
