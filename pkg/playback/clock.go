package playback

import (
	"sync"
	"time"
)

// Clock abstracts the audio timeline so the scheduler can be driven by
// a real monotonic clock in production and advanced by hand in tests.
// Time is expressed as an offset from the clock's creation.
type Clock interface {
	// Now returns the current position on the timeline.
	Now() time.Duration

	// AfterFunc runs f once d has elapsed on this timeline.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from firing.
	// Returns false if it already fired or was stopped.
	Stop() bool
}

// RealClock is a Clock backed by the monotonic system clock.
type RealClock struct {
	epoch time.Time
}

// NewRealClock creates a clock whose timeline starts now.
func NewRealClock() *RealClock {
	return &RealClock{epoch: time.Now()}
}

// Now returns time elapsed since the clock was created.
func (c *RealClock) Now() time.Duration {
	return time.Since(c.epoch)
}

// AfterFunc schedules f on the system timer.
func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	return realTimer{time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (t realTimer) Stop() bool {
	return t.t.Stop()
}

// MockClock is a Clock for testing. Time only moves when Advance is
// called; due timers fire in timeline order during Advance.
type MockClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*mockTimer
}

// NewMockClock creates a mock clock at position zero.
func NewMockClock() *MockClock {
	return &MockClock{}
}

// Now returns the current mock timeline position.
func (c *MockClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to fire once the timeline passes d from now.
// The callback never fires inline; call Advance to deliver it.
func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &mockTimer{clock: c, when: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the timeline forward and fires every timer that becomes
// due, in order. Advance(0) fires timers already due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()

	for {
		t := c.takeNextDue()
		if t == nil {
			return
		}
		// Fire without holding the clock lock; callbacks take their
		// own locks and may register new timers.
		t.f()
	}
}

func (c *MockClock) takeNextDue() *mockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due *mockTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.fired || t.stopped {
			continue
		}
		live = append(live, t)
		if t.when > c.now {
			continue
		}
		if due == nil || t.when < due.when {
			due = t
		}
	}
	c.timers = live

	if due != nil {
		due.fired = true
	}
	return due
}

type mockTimer struct {
	clock   *MockClock
	when    time.Duration
	f       func()
	fired   bool
	stopped bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
