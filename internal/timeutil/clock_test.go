package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func fired(ch <-chan time.Time) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	timer := c.NewTimer(time.Millisecond)
	<-timer.C()
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
	assert.False(t, timer.Stop())
}

func TestMockClock_TimerFiresAtDeadline(t *testing.T) {
	c := NewMockClock(epoch)
	timer := c.NewTimer(time.Second)

	c.Advance(999 * time.Millisecond)
	assert.False(t, fired(timer.C()))
	c.Advance(time.Millisecond)
	assert.True(t, fired(timer.C()))
	assert.Equal(t, epoch.Add(time.Second), c.Now())

	// fires once only
	c.Advance(time.Hour)
	assert.False(t, fired(timer.C()))
}

func TestMockClock_TimerResetMovesDeadline(t *testing.T) {
	c := NewMockClock(epoch)
	timer := c.NewTimer(time.Second)

	c.Advance(800 * time.Millisecond)
	assert.True(t, timer.Reset(time.Second))
	c.Advance(800 * time.Millisecond)
	assert.False(t, fired(timer.C()), "reset should push the deadline out")
	c.Advance(200 * time.Millisecond)
	assert.True(t, fired(timer.C()))

	assert.False(t, timer.Reset(time.Second), "already fired")
	c.Advance(time.Second)
	assert.True(t, fired(timer.C()))
}

func TestMockClock_TimerStop(t *testing.T) {
	c := NewMockClock(epoch)
	timer := c.NewTimer(time.Second)
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(2 * time.Second)
	assert.False(t, fired(timer.C()))
}

func TestMockClock_BlockUntil(t *testing.T) {
	c := NewMockClock(epoch)
	done := make(chan struct{})
	go func() {
		c.BlockUntil(2)
		close(done)
	}()
	c.NewTimer(time.Second)
	c.NewTimer(time.Minute)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("BlockUntil did not return")
	}
}
