package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source shared by every service of a test
// stack. Wall-clock moves are evaluated in the location of the start time.
type Clock struct {
	mu       sync.Mutex
	current  time.Time
	location *time.Location
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start, location: start.Location()}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc returns Now for injection, or time.Now for a nil clock.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) update(move func(time.Time) time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = move(c.current.In(c.location))
	return c.current
}

// Set jumps to t.
func (c *Clock) Set(t time.Time) {
	c.update(func(time.Time) time.Time { return t })
}

// Advance moves forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	return c.update(func(t time.Time) time.Time { return t.Add(d) })
}

// At moves to hour:minute on the current calendar day.
func (c *Clock) At(hour, minute int) time.Time {
	return c.update(func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, hour, minute, 0, 0, c.location)
	})
}

// NextDay keeps the wall-clock time and moves n calendar days ahead.
func (c *Clock) NextDay(n int) time.Time {
	return c.update(func(t time.Time) time.Time { return t.AddDate(0, 0, n) })
}
