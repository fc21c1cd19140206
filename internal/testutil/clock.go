package testutil

import (
	"sync"
	"time"
)

// Epoch is the start time of every DeterministicClock.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a fake clock for driving virtual devices in tests.
//
// Every call to Now advances the clock by a fixed step, so code that polls
// for a deadline makes progress without sleeping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock at Epoch that advances by step on
// every Now call. A zero step gives a clock that moves only via Advance.
func NewDeterministicClock(step time.Duration) *DeterministicClock {
	return &DeterministicClock{now: Epoch, step: step}
}

// Now returns the current time and then advances the clock by one step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the current time without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset moves the clock back to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
