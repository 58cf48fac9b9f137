package engine

import (
	"sync"

	"github.com/roach88/shaderhunt/internal/hunting"
)

// inputQueue is a thread-safe FIFO of operator input events.
//
// The host's input thread enqueues; Tick drains on the frame thread. The
// queue is unbounded, since a frame may stall for a long time while a
// replacement compiles and no key press may be dropped.
type inputQueue struct {
	mu     sync.Mutex
	events []hunting.Event
	closed bool
}

// newInputQueue creates an empty input queue.
func newInputQueue() *inputQueue {
	return &inputQueue{
		events: make([]hunting.Event, 0, 16),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *inputQueue) Enqueue(e hunting.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	return true
}

// Drain removes and returns every queued event in FIFO order.
func (q *inputQueue) Drain() []hunting.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	out := make([]hunting.Event, len(q.events))
	copy(out, q.events)
	q.events = q.events[:0]
	return out
}

// Close rejects further events. Queued events can still be drained.
func (q *inputQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
