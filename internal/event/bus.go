package event

import (
	"sync"
	"time"
)

// subscriberBufferSize bounds how many events a slow subscriber can lag
// behind before the bus starts dropping events for it.
const subscriberBufferSize = 256

// Logger captures the logging operations the bus needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Bus fans events out to subscribers. Publish never blocks: each
// subscriber has a buffered channel, and events for a full subscriber
// are dropped rather than stalling the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
	logger Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[chan Event]struct{}),
		logger: noopLogger{},
	}
}

// SetLogger attaches a logger for dropped-event warnings.
func (b *Bus) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Subscribe registers a new subscriber and returns its event channel.
// The channel is closed when the subscriber is removed or the bus shuts
// down. A subscriber that stops draining its channel loses events once
// the buffer fills.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// with a channel that was never subscribed or was already removed.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if sub == ch {
			delete(b.subs, sub)
			close(sub)
			return
		}
	}
}

// Publish delivers the event to every current subscriber without
// blocking. The timestamp is filled in when unset.
//
// The read lock is held across the send loop so Unsubscribe and Close
// cannot close a channel mid-send. The sends are select/default and
// never block, so the lock is released promptly.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub <- ev:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				"kind", ev.Kind,
				"hostname", ev.Hostname)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and closes every subscriber channel.
// Publish and Subscribe become no-ops afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub)
		delete(b.subs, sub)
	}
}
