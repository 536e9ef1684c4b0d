package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall time deterministic clocks start from.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// SteppingClock is a wall clock for tests that advances by a fixed step on
// every reading, so timestamps in frames and journal rows are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewSteppingClock creates a clock whose first reading is Epoch.
// A zero step returns Epoch forever.
func NewSteppingClock(step time.Duration) *SteppingClock {
	return &SteppingClock{start: Epoch, step: step}
}

// Now returns the next reading. Its signature matches time.Now so it can be
// passed wherever a func() time.Time is expected.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Reset rewinds the clock to Epoch.
func (c *SteppingClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
