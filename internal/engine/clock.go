package engine

import "sync/atomic"

// Clock hands out update and drain sequence numbers. Every UpdateTopic and
// every Drain takes the next value, so an entry's Seq is always lower than
// the seq of the drain that returned it.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first Next is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value. Safe from any goroutine.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current is the last value handed out, or the start value.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
