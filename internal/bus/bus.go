package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe bus with topic-prefix filtering.
// Delivery is non-blocking: a subscriber with a full buffer misses the event
// rather than stalling the publisher. Correctness never depends on bus
// delivery; the store snapshot is always authoritative.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	next   int
	closed bool
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish delivers the event to every subscriber whose prefix matches the
// event topic.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Topic, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber buffer full; drop.
			}
		}
	}
}

// Subscribe returns a channel receiving events whose topic starts with
// prefix, and an unsubscribe function.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close drops all subscriptions and rejects further publishes. Channels are
// left open so draining readers simply stop receiving.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[int]*subscription)
	b.mu.Unlock()
}
