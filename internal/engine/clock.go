package engine

import "sync/atomic"

// Clock is the monotonic logical clock that orders transitions.
//
// Every toggle is stamped with a strictly increasing seq from this
// clock. Seq, never wall time, is what the journal and traces order by,
// so replay reproduces the original order exactly.
//
// Thread-safety: atomic, safe from any goroutine, though under the
// single-writer loop only one goroutine calls Next.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start. Used to continue a
// journal's seq line across restarts.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the latest issued sequence number.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}
