package engine

import "sync/atomic"

// Clock is the monotonic logical clock that orders journal events.
//
// Every journal event is stamped with a strictly increasing seq from this
// clock. Intercepts run on many threads, so wall-clock timestamps can tie or
// run backwards; seq never does.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next seq. Concurrent intercepts each get a distinct value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out, or 0 before the first event.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
