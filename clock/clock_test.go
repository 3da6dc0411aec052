package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClock(t *testing.T) {
	c := System()

	before := time.Now().Add(-time.Second)
	now := c.Now()
	after := time.Now().Add(time.Second)

	assert.True(t, now.After(before), "system clock should track wall time")
	assert.True(t, now.Before(after), "system clock should track wall time")
	assert.Equal(t, time.UTC, now.Location(), "system clock should report UTC")
}

func TestTestClock(t *testing.T) {
	c := NewTestClock()
	assert.Equal(t, time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC), c.Now())

	t.Run("does not move on its own", func(t *testing.T) {
		first := c.Now()
		second := c.Now()
		assert.Equal(t, first, second)
	})

	t.Run("Advance moves forward and returns the new instant", func(t *testing.T) {
		next := c.Advance(90 * time.Second)
		assert.Equal(t, time.Date(2019, time.January, 1, 0, 1, 30, 0, time.UTC), next)
		assert.Equal(t, next, c.Now())
	})

	t.Run("Set pins an arbitrary instant", func(t *testing.T) {
		at := time.Date(2020, time.June, 15, 12, 0, 0, 0, time.UTC)
		c.Set(at)
		assert.Equal(t, at, c.Now())
	})
}

func TestNewTestClockAt(t *testing.T) {
	at := time.Date(2021, time.March, 3, 9, 30, 0, 0, time.UTC)
	c := NewTestClockAt(at)
	assert.Equal(t, at, c.Now())
}

func TestTestClockConcurrentAdvance(t *testing.T) {
	c := NewTestClock()
	start := c.Now()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(100*time.Millisecond), c.Now())
}
