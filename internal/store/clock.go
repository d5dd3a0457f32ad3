package store

import "sync/atomic"

// Clock is the partition's monotonic logical clock.
//
// Every header, link, tombstone and grant is stamped with a strictly
// increasing seq from this clock. Append order within a partition is seq
// order; wall time is never consulted.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock that resumes after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
