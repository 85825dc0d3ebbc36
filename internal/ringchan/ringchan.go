// Package ringchan provides a bounded channel with overwrite-oldest
// semantics. Producers never block: when the buffer is full the oldest
// element is discarded. Used between the event loop and the sink dispatcher
// so a slow sink (e.g. an MQTT broker hiccup) can never stall gesture
// processing.
package ringchan

import "sync"

// RingChannel wraps a buffered channel with drop-oldest overflow behavior.
type RingChannel[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Consumers can range over it until Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest buffered element if full. Sends after
// Close are dropped.
func (rc *RingChannel[T]) Send(v T) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	for {
		select {
		case rc.ch <- v:
			return
		default:
		}
		select {
		case <-rc.ch: // drop oldest
		default:
		}
	}
}

// Close closes the receive side. Idempotent.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// Len reports the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}
