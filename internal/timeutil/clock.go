// Package timeutil lets timing code run against a controllable clock.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the server depends on.
type Clock interface {
	Now() time.Time

	// NewTimer creates a Timer that sends the current time on its channel
	// after at least duration d.
	NewTimer(d time.Duration) Timer
}

// Timer represents a single event timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer {
	return realTimer{time.NewTimer(d)}
}

type realTimer struct{ *time.Timer }

func (t realTimer) C() <-chan time.Time { return t.Timer.C }

// MockClock only moves when told to. Timers fire during Advance once the
// clock reaches their deadline.
type MockClock struct {
	mu     sync.Mutex
	armed  *sync.Cond
	now    time.Time
	timers []*MockTimer
}

// NewMockClock creates a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	c := &MockClock{now: t}
	c.armed = sync.NewCond(&c.mu)
	return c
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires expired timers.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	timers := append([]*MockTimer(nil), c.timers...)
	c.mu.Unlock()

	for _, t := range timers {
		t.fire(now)
	}
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTimer{
		clock:    c,
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
	}
	c.timers = append(c.timers, t)
	c.armed.Broadcast()
	return t
}

// BlockUntil waits until at least n timers have been created. Call it
// before Advance when another goroutine is about to arm a timer.
func (c *MockClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.timers) < n {
		c.armed.Wait()
	}
}

// MockTimer is a timer driven by a MockClock.
type MockTimer struct {
	clock    *MockClock
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	done     bool
}

func (t *MockTimer) C() <-chan time.Time {
	return t.ch
}

// Stop reports whether the timer was still pending.
func (t *MockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := !t.done
	t.done = true
	return pending
}

// Reset re-arms the timer d after the clock's current time.
func (t *MockTimer) Reset(d time.Duration) bool {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := !t.done
	t.done = false
	t.deadline = now.Add(d)
	return pending
}

func (t *MockTimer) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || now.Before(t.deadline) {
		return
	}
	t.done = true
	select {
	case t.ch <- now:
	default:
	}
}
