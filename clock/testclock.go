package clock

import (
	"sync"
	"time"
)

// TestClock is a Clock whose Now() is advanced explicitly by test code and
// whose TickAfter channels fire only when SetTime crosses their deadline.
type TestClock struct {
	mu sync.Mutex

	now     time.Time
	waiters []*clockWaiter
}

type clockWaiter struct {
	deadline time.Time
	channel  chan time.Time
}

// NewTestClock returns a TestClock initialized to startTime.
func NewTestClock(startTime time.Time) *TestClock {
	return &TestClock{now: startTime}
}

// Now returns the clock's current, test-controlled time.
//
// NOTE: Part of the Clock interface.
func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// TickAfter registers a waiter that fires once SetTime advances the clock
// past now+duration.
//
// NOTE: Part of the Clock interface.
func (c *TestClock) TickAfter(duration time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.now.Add(duration)
	if !deadline.After(c.now) {
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, &clockWaiter{
		deadline: deadline,
		channel:  ch,
	})
	return ch
}

// SetTime advances the clock to newTime and fires every waiter whose
// deadline has passed.
func (c *TestClock) SetTime(newTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = newTime

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !newTime.Before(w.deadline) {
			w.channel <- newTime
			continue
		}
		remaining = append(remaining, w)
	}
	c.waiters = remaining
}
