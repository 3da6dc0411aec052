// Package clock provides injectable time sources. Every time-dependent
// decision in the scheduler (due checks, lease expiry, window math) goes
// through a Clock so tests can pin and advance the instant.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System returns the wall-clock Clock.
func System() Clock {
	return systemClock{}
}

// TestClock is a settable Clock for tests. It only moves when told to.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewTestClock returns a TestClock pinned at 2019-01-01T00:00:00.000Z.
func NewTestClock() *TestClock {
	return &TestClock{now: time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

// NewTestClockAt returns a TestClock pinned at the given instant.
func NewTestClockAt(at time.Time) *TestClock {
	return &TestClock{now: at.UTC()}
}

// Now returns the pinned instant.
func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *TestClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set pins the clock to the given instant.
func (c *TestClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at.UTC()
}
