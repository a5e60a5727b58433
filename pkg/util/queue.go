package util

import (
	"context"
	"sync/atomic"
)

// DroppingQueue is a bounded FIFO for a single producer that must never block.
// When full, the oldest item is discarded to make room and the overrun counter grows.
type DroppingQueue[T any] struct {
	ch       chan T
	overruns atomic.Uint64
}

func NewDroppingQueue[T any](capacity int) *DroppingQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &DroppingQueue[T]{ch: make(chan T, capacity)}
}

// Push enqueues v and reports whether an older item was dropped.
func (q *DroppingQueue[T]) Push(v T) bool {
	select {
	case q.ch <- v:
		return false
	default:
	}

	select {
	case <-q.ch:
	default:
	}
	q.overruns.Add(1)

	select {
	case q.ch <- v:
	default:
		q.overruns.Add(1)
	}
	return true
}

// Pop blocks until an item is available or the context ends.
func (q *DroppingQueue[T]) Pop(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryPop returns immediately; ok is false when the queue is empty.
func (q *DroppingQueue[T]) TryPop() (v T, ok bool) {
	select {
	case v = <-q.ch:
		return v, true
	default:
		return v, false
	}
}

func (q *DroppingQueue[T]) C() <-chan T {
	return q.ch
}

func (q *DroppingQueue[T]) Len() int {
	return len(q.ch)
}

func (q *DroppingQueue[T]) Cap() int {
	return cap(q.ch)
}

func (q *DroppingQueue[T]) Overruns() uint64 {
	return q.overruns.Load()
}
