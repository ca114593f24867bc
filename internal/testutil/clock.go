package testutil

import "sync"

// DeterministicClock replays a fixed sequence of run seqs for tests, then
// keeps counting from the last one. With no script it issues 1, 2, 3.
//
// Reset rewinds to the start of the script so a suite can be replayed with
// identical seqs. It is safe for concurrent use.
type DeterministicClock struct {
	mu     sync.Mutex
	script []int64
	issued []int64
}

// NewDeterministicClock creates a clock that issues script first. Gaps in
// the script stand in for runs recorded by another writer.
func NewDeterministicClock(script ...int64) *DeterministicClock {
	return &DeterministicClock{script: script}
}

// Next issues the next seq.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var seq int64
	switch n := len(c.issued); {
	case n < len(c.script):
		seq = c.script[n]
	case n > 0:
		seq = c.issued[n-1] + 1
	default:
		seq = 1
	}
	c.issued = append(c.issued, seq)
	return seq
}

// Current returns the last issued seq, or 0 before the first.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.issued) == 0 {
		return 0
	}
	return c.issued[len(c.issued)-1]
}

// Issued returns every seq handed out since the last Reset.
func (c *DeterministicClock) Issued() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.issued...)
}

// Reset rewinds to the start of the script.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued = nil
}
