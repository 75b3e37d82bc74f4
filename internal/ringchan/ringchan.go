// Package ringchan provides a bounded channel with overwrite-oldest
// semantics, used to decouple BLE callbacks and flow events from their
// consumers without ever blocking the producer.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Ring is a bounded channel-like buffer that drops the oldest element
// when full. Producers never block; a slow consumer only loses the
// oldest values, never stalls the radio callback behind it.
//
// Readers range over C() until the ring is closed:
//
//	r := ringchan.New[int](8)
//	go func() {
//		for v := range r.C() {
//			handle(v)
//		}
//	}()
//	r.Send(42)
//
// Send after Close is a no-op, so producers may race teardown safely.
type Ring[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	dropped atomic.Int64
}

// New creates a Ring with the given capacity. Panics if capacity <= 0.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts v, discarding the oldest buffered element if the ring is
// full. Returns false if the ring is already closed; the value is then
// silently dropped. Safe for concurrent producers.
func (r *Ring[T]) Send(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	for {
		select {
		case r.ch <- v:
			return true
		default:
		}
		// Full: drop the oldest and retry. The consumer may drain
		// concurrently, which only makes room.
		select {
		case <-r.ch:
			r.dropped.Add(1)
		default:
		}
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Dropped returns how many elements were overwritten before being read.
func (r *Ring[T]) Dropped() int64 {
	return r.dropped.Load()
}

// Close closes the receive channel. Idempotent; concurrent Sends that
// lose the race are dropped rather than panicking.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}
