// Package streaming provides a pub/sub event bus for server-pushed events
// (spec §6 "Persistent streaming connection"). Events are delivered by direct
// calls to registered subscribers, so subscribers get typed Go values instead
// of re-decoding their own JSON. A watermill in-memory gochannel is created
// with the bus and closed by Close, but no event passes through it.
package streaming

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Kind is one of the four event kinds spec §6 names for /ws.
type Kind string

const (
	KindStatusChange     Kind = "status_change"
	KindProgress         Kind = "progress"
	KindAssistantMessage Kind = "assistant_message"
	KindLog              Kind = "log"
)

// Event is one server-pushed event.
type Event struct {
	Kind Kind `json:"type"`
	Data any  `json:"data"`
}

// Subscriber receives events pushed to the bus.
type Subscriber func(Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is the streaming event bus. Message ordering follows the server's
// enqueue order (spec §5 "Ordering guarantees"): Publish delivers to
// every current subscriber, in registration order, before returning.
type Bus struct {
	mu     sync.RWMutex
	pubsub *gochannel.GoChannel

	subscribers []subscriberEntry
	nextID      uint64
	closed      bool
}

// New creates a new streaming event bus.
func New() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100, Persistent: false},
			watermill.NopLogger{},
		),
	}
}

// Subscribe registers fn to receive every event published after this call.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.subscribers = append(b.subscribers, subscriberEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, entry := range b.subscribers {
			if entry.id == id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers event to every subscriber synchronously, in subscription
// order, so a caller awaiting Publish knows every current subscriber has
// already observed the event (spec §5 "Messages appended ... appear in
// append order" applies equally to the event stream).
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, len(b.subscribers))
	for i, entry := range b.subscribers {
		subs[i] = entry.fn
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}

// Close shuts the bus down; further Publish/Subscribe calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
