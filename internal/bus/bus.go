// Package bus implements the in-process typed publish/subscribe broker the
// pipeline loops communicate through. Delivery is in-memory only and scoped
// to a single run.
package bus

import (
	"context"
	"sync"

	"stock-scout/internal/logger"
	"stock-scout/internal/types"
)

type subscription struct {
	kinds map[types.EventKind]bool
	ch    chan types.Event
}

// Bus fans events out to every subscriber of their kind. Each subscriber
// owns a bounded channel; a full channel blocks the publisher rather than
// dropping the event.
type Bus struct {
	mu      sync.Mutex
	subs    []*subscription
	bufSize int
	done    chan struct{}
	closed  bool
	pubs    sync.WaitGroup
}

// New creates a bus whose subscriber channels hold up to bufSize events.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{bufSize: bufSize, done: make(chan struct{})}
}

// Subscribe registers interest in the given kinds and returns the channel
// events arrive on. Events of different subscribed kinds share the channel
// and keep their per-kind publish order.
func (b *Bus) Subscribe(kinds ...types.EventKind) <-chan types.Event {
	sub := &subscription{
		kinds: make(map[types.EventKind]bool, len(kinds)),
		ch:    make(chan types.Event, b.bufSize),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub.ch
}

// Publish enqueues ev for every subscriber of its kind. Blocks when a
// subscriber's queue is full; slow consumers throttle producers instead of
// losing events. Publishing after Close drops the event with a warning.
func (b *Bus) Publish(ctx context.Context, ev types.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		logger.Warn(ctx, "Bus closed, event dropped", "kind", ev.Kind.String(), "symbol", ev.Symbol)
		return
	}
	b.pubs.Add(1)
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kinds[ev.Kind] {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()
	defer b.pubs.Done()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		case <-b.done:
			logger.Warn(ctx, "Bus closing, event dropped", "kind", ev.Kind.String(), "symbol", ev.Symbol)
			return
		}
	}
}

// Close stops delivery and closes every subscriber channel so consumer
// loops drain and exit. Subscriber channels close only after every in-flight
// Publish has returned; a publisher blocked on a full channel is released
// through done first.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.pubs.Wait()

	b.mu.Lock()
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
