package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping invocation reports.
//
// Report Seq values come from Clock.Next and never from wall time, so the
// reports of one Dispatch sort into execution order even when several
// dispatches run concurrently against the same Engine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start, typically the highest
// Seq already persisted in the report log.
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
