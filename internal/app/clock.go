package app

import (
	"sync"
	"time"
)

// Clock abstracts wall time and timers so sessions can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is backed by the time package.
func SystemClock() Clock { return systemClock{} }

// Countdown calls onTick once per second with the seconds remaining, down to zero,
// unless stopped first. After Stop returns no further tick is scheduled; a tick that
// was already running may still complete, so callers guard their own state.
type Countdown struct {
	clock  Clock
	onTick func(left int)

	mu      sync.Mutex
	timer   Timer
	left    int
	stopped bool
}

// StartCountdown arms a countdown of the given length.
func StartCountdown(clock Clock, seconds int, onTick func(left int)) *Countdown {
	c := &Countdown{clock: clock, onTick: onTick, left: seconds}
	c.mu.Lock()
	c.timer = clock.AfterFunc(time.Second, c.fire)
	c.mu.Unlock()
	return c
}

// Left returns the seconds remaining.
func (c *Countdown) Left() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

// Stop cancels any further ticks. It is safe to call more than once.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Countdown) fire() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.left--
	left := c.left
	if left > 0 {
		c.timer = c.clock.AfterFunc(time.Second, c.fire)
	} else {
		c.stopped = true
	}
	c.mu.Unlock()

	c.onTick(left)
}
