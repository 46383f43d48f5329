// Package clock implements the simulation clock (C1): it maps dataset
// timestamps onto wall-clock time at a configurable speed multiplier and
// exposes a cooperative, cancellable wait primitive shared by every node
// runtime.
package clock

import (
	"sync"
	"time"
)

// Clock paces replay of a dataset's timestamped observation stream. Given a
// dataset span [t0, t1] and speed multiplier s >= 1, wall-clock elapsed e
// maps to logical = t0 + s*e. A single process-wide Clock is shared by all
// node runtimes (spec.md §4.1); it pins no goroutine of its own.
type Clock struct {
	t0      int64
	speed   float64
	started time.Time

	mu       sync.Mutex
	cancelled bool
	waiters   map[chan struct{}]int64 // waiter -> logical deadline
}

// New creates a clock anchored at startTime (the dataset's first
// timestamp), advancing at speed logical-seconds per wall-clock second.
func New(startTime int64, speed float64) *Clock {
	return &Clock{
		t0:      startTime,
		speed:   speed,
		started: time.Now(),
		waiters: make(map[chan struct{}]int64),
	}
}

// Now returns the current logical time.
func (c *Clock) Now() int64 {
	elapsed := time.Since(c.started).Seconds()
	return c.t0 + int64(c.speed*elapsed)
}

// WaitUntil suspends the calling goroutine until the logical clock reaches
// or exceeds t, or until Shutdown is called, whichever comes first. Returns
// false (the cancellation sentinel) if shutdown won the race.
func (c *Clock) WaitUntil(t int64) bool {
	if c.Now() >= t {
		c.mu.Lock()
		cancelled := c.cancelled
		c.mu.Unlock()
		return !cancelled
	}

	wallDelay := time.Duration(float64(t-c.Now()) / c.speed * float64(time.Second))
	if wallDelay < 0 {
		wallDelay = 0
	}

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return false
	}
	ch := make(chan struct{})
	c.waiters[ch] = t
	c.mu.Unlock()

	timer := time.NewTimer(wallDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		c.mu.Lock()
		delete(c.waiters, ch)
		cancelled := c.cancelled
		c.mu.Unlock()
		return !cancelled
	case <-ch:
		return false
	}
}

// Shutdown is a broadcast cancellation: every pending and future WaitUntil
// call returns false immediately (spec.md §4.1, §5).
func (c *Clock) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	for ch := range c.waiters {
		close(ch)
	}
	c.waiters = make(map[chan struct{}]int64)
}

// Cancelled reports whether Shutdown has been called.
func (c *Clock) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}
