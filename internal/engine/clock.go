package engine

import "sync/atomic"

// Clock issues run sequence numbers. A seq orders runs in the history store
// independently of wall time, so two replays of the same suite can be
// compared by which came first. The zero value is ready and issues 1 first.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first run is seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt resumes numbering after last, typically the highest seq
// already recorded.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.last.Store(last)
	return c
}

// Next claims the next seq.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current reports the last seq claimed, or the resume point if none was.
func (c *Clock) Current() int64 {
	return c.last.Load()
}

// Advance raises the resume point to last when another writer has recorded
// runs past it. It never lowers the clock.
func (c *Clock) Advance(last int64) {
	for {
		cur := c.last.Load()
		if last <= cur || c.last.CompareAndSwap(cur, last) {
			return
		}
	}
}
