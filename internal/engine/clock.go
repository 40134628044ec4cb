package engine

import "sync/atomic"

// Clock numbers the invocations of one artifact 1, 2, 3, ... in the order
// they start. It is a logical counter: ordering never depends on wall-clock
// time. Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose first Next is start+1, for an artifact
// reloaded from the registry with start runs already recorded.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out, 0 if none.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
