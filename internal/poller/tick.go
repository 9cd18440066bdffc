package poller

import (
	"context"
	"sync"
	"time"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/timeutil"
)

// PeriodicTick emits a TIMER_TICK carrying its tag every interval while
// active.
type PeriodicTick struct {
	*Base
	tag string
}

// NewPeriodicTick returns an inactive tick poller.
func NewPeriodicTick(tag string, interval time.Duration) *PeriodicTick {
	return &PeriodicTick{Base: NewBase("tick:"+tag, interval, false), tag: tag}
}

func (t *PeriodicTick) NextEvent(context.Context) (*events.Event, error) {
	ev := events.Must(events.KindTimerTick, t.tag)
	return &ev, nil
}

// DelayedOneShot emits its event once, a fixed delay after the most recent
// Trigger. Triggers arriving before the delay elapses push the emission
// back, so a burst of triggers yields a single event after the burst goes
// quiet.
type DelayedOneShot struct {
	*Base
	clock timeutil.Clock
	delay time.Duration
	event events.Event

	mu       sync.Mutex
	armed    bool
	deadline time.Time
	fired    chan struct{}
}

// NewDelayedOneShot returns a one-shot that emits ev delay after a trigger.
func NewDelayedOneShot(name string, delay time.Duration, ev events.Event, clock timeutil.Clock) *DelayedOneShot {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DelayedOneShot{
		Base:  NewBase(name, MinInterval, true),
		clock: clock,
		delay: max(delay, MinInterval),
		event: ev,
		fired: make(chan struct{}, 1),
	}
}

// Trigger (re)arms the one-shot.
func (d *DelayedOneShot) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadline = d.clock.Now().Add(d.delay)
	if d.armed {
		return
	}
	d.armed = true
	go d.wait(d.clock.NewTimer(d.delay))
}

// Armed reports whether an emission is pending.
func (d *DelayedOneShot) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *DelayedOneShot) wait(t timeutil.Timer) {
	for range t.C() {
		d.mu.Lock()
		if left := d.deadline.Sub(d.clock.Now()); left > 0 {
			t.Reset(left)
			d.mu.Unlock()
			continue
		}
		d.armed = false
		d.mu.Unlock()

		select {
		case d.fired <- struct{}{}:
		default:
		}
		return
	}
}

// NextEvent blocks until the pending emission is due.
func (d *DelayedOneShot) NextEvent(ctx context.Context) (*events.Event, error) {
	select {
	case <-d.fired:
		ev := d.event
		return &ev, nil
	case <-ctx.Done():
		return nil, nil
	}
}
