package approval

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic logical clock stamping engine events.
//
// Every event carries a strictly increasing seq so listeners can order and
// de-duplicate deliveries without trusting wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after a known sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// NowFunc returns wall-clock time for record timestamps.
type NowFunc func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
