// Package bus provides the in-process typed event broadcast used by the
// indexing pipeline, the config watcher, and the sync service.
//
// Publishing never blocks the producer. Each subscriber owns a bounded
// buffer; when it falls behind, events are dropped and the subscriber sees
// a lagged marker (the drop count) on its next received envelope.
package bus

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 1024

// Envelope wraps a delivered event with lag information.
type Envelope struct {
	Event Event
	// Dropped is the number of events this subscriber missed since its
	// previous successful receive. Zero means the stream is contiguous.
	Dropped int64
}

type subscriber struct {
	ch      chan Envelope
	dropped atomic.Int64
}

// Bus is a bounded broadcast event bus.
type Bus struct {
	capacity int

	mu     sync.RWMutex
	subs   map[string]*subscriber
	nextID atomic.Int64
	closed bool
}

// New creates a bus with the default per-subscriber capacity.
func New() *Bus {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a bus with an explicit per-subscriber capacity.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[string]*subscriber),
	}
}

// Publish broadcasts the event to all subscribers without blocking.
// Subscribers whose buffers are full miss the event and accumulate lag.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		lag := sub.dropped.Load()
		select {
		case sub.ch <- Envelope{Event: event, Dropped: lag}:
			if lag > 0 {
				sub.dropped.Add(-lag)
			}
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
// The channel is closed when the subscriber is removed or the bus closes.
func (b *Bus) Subscribe() (string, <-chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatInt(b.nextID.Add(1), 10)
	sub := &subscriber{ch: make(chan Envelope, b.capacity)}
	if b.closed {
		close(sub.ch)
	} else {
		b.subs[id] = sub
	}
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
