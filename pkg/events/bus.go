package events

import (
	"context"
	"sync"
	"sync/atomic"
)

const DefaultSubscriberBuffer = 64

type subscription struct {
	name    string
	ch      chan Event
	dropped atomic.Uint64
}

// Bus fans events out to subscribers. Publish never blocks; a subscriber that falls
// behind loses events and its drop counter increments.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(name string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	s := &subscription{name: name, ch: make(chan Event, buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch
	}
	b.subs = append(b.subs, s)
	return s.ch
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events each subscriber missed.
func (b *Bus) Dropped() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ret := make(map[string]uint64, len(b.subs))
	for _, s := range b.subs {
		ret[s.name] += s.dropped.Load()
	}
	return ret
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
}

// Sink consumes events from a subscription until the channel closes or ctx is done.
type Sink interface {
	Handle(ev Event) error
}

// Run drives a sink from a subscription. Sink errors are passed to onError and do not
// stop the loop.
func Run(ctx context.Context, ch <-chan Event, sink Sink, onError func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := sink.Handle(ev); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
