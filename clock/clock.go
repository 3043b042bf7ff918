// Package clock implements Clock: a monotonic "time since reset" stopwatch
// used by Client and StatusListener as a liveness watchdog.
package clock

import (
	"sync"
	"time"
)

// Clock is a monotonic stopwatch. The zero value is usable, but Elapsed
// reports 0 until the first Reset.
type Clock struct {
	mu    sync.Mutex
	since time.Time
}

// New returns a Clock reset to now.
func New() *Clock {
	c := &Clock{}
	c.Reset()
	return c
}

// Reset rearms the stopwatch to the current instant.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.since = time.Now()
}

// Elapsed returns the time elapsed since the last Reset.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	since := c.since
	c.mu.Unlock()
	if since.IsZero() {
		return 0
	}
	return time.Since(since)
}

// Seconds returns Elapsed as a floating point number of seconds, matching
// the source driver's now<T>() -> T accessor.
func (c *Clock) Seconds() float64 {
	return c.Elapsed().Seconds()
}
