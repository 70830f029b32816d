// Package events provides the in-process host that gesture notifications are delivered to.
package events

import (
	"sync"
	"time"
)

// Notification is a single emitted event.
type Notification struct {
	Event      string    `json:"event"`
	Label      int       `json:"label"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"time"`
}

// Handler receives notifications for the events it subscribed to.
type Handler func(n Notification)

// Host is what the lifecycle controller is registered with. It answers the
// interest query used to infer gestures and receives emitted events.
type Host interface {
	// Interests returns the event names someone has subscribed to, in the
	// order they were first declared.
	Interests() []string
	// Emit delivers n to every matching subscriber.
	Emit(n Notification)
}

// InterestSource contributes additional interest names to a Bus, such as
// event names bound to plugin actions in the store.
type InterestSource func() []string

type subscription struct {
	id      int
	event   string
	handler Handler
}

// Bus is a Host that fans events out to subscribers. The wildcard event "*"
// receives every notification but does not count as an interest.
type Bus struct {
	mu       sync.RWMutex
	subs     []subscription
	nextID   int
	sources  []InterestSource
	declared []string
}

// Wildcard subscribes to every event.
const Wildcard = "*"

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for event and returns a function that removes it.
func (b *Bus) Subscribe(event string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, event: event, handler: handler})
	if event != Wildcard {
		b.declare(event)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Declare records interest in event names without attaching a handler.
func (b *Bus) Declare(events ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range events {
		b.declare(e)
	}
}

// AddInterestSource registers a source consulted by Interests.
func (b *Bus) AddInterestSource(src InterestSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, src)
}

// Interests returns declared event names followed by names from interest
// sources, without duplicates.
func (b *Bus) Interests() []string {
	b.mu.RLock()
	names := make([]string, len(b.declared))
	copy(names, b.declared)
	sources := make([]InterestSource, len(b.sources))
	copy(sources, b.sources)
	b.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, src := range sources {
		for _, n := range src() {
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// Emit calls every handler subscribed to n.Event or to the wildcard.
// Handlers run on the caller's goroutine, outside the bus lock.
func (b *Bus) Emit(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	b.mu.RLock()
	var handlers []Handler
	for _, s := range b.subs {
		if s.event == n.Event || s.event == Wildcard {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(n)
	}
}

func (b *Bus) declare(event string) {
	for _, d := range b.declared {
		if d == event {
			return
		}
	}
	b.declared = append(b.declared, event)
}
