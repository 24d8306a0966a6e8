// Package notify implements the in-process event bus that carries
// asynchronous Nexus events (ChildFaulted, RebuildComplete, ...) from the
// core and rebuild engine to subscribers, principally the RPC surface's
// Server-Sent-Events endpoint.
//
// Grounded on the cached-pointer-swap discipline of
// pkg/controlplane/runtime's SettingsWatcher: readers never block a
// writer and vice versa, here generalized from a single cached value to a
// fan-out list of subscriber channels guarded by one mutex.
package notify

import (
	"sync"
)

// EventKind identifies the type of an Event.
type EventKind string

const (
	ChildFaulted       EventKind = "ChildFaulted"
	ChildOnline        EventKind = "ChildOnline"
	RebuildStarted     EventKind = "RebuildStarted"
	RebuildProgress    EventKind = "RebuildProgress"
	RebuildComplete    EventKind = "RebuildComplete"
	RebuildFailed      EventKind = "RebuildFailed"
	NexusStateChanged  EventKind = "NexusStateChanged"
	PublicationChanged EventKind = "PublicationChanged"
)

// Event is a single notification delivered to subscribers.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Nexus    string         `json:"nexus"`
	ChildURI string         `json:"child_uri,omitempty"`
	Message  string         `json:"message,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Bus is an in-process, multi-subscriber event bus scoped to one Nexus
// daemon. Subscribers each get their own buffered channel; a slow
// subscriber drops events rather than blocking publishers, since SSE
// consumers should see progress, not create back-pressure on the Nexus
// core's hot path.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its event channel and
// an unsubscribe function. The channel is buffered; callers should drain
// it promptly.
func (b *Bus) Subscribe(bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	ch := make(chan Event, bufferSize)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers ev to every current subscriber. A subscriber whose
// buffer is full has the event dropped for it rather than blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers, for tests and
// diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
