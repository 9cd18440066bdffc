// Package poller runs independent event producers side by side, all feeding
// one shared queue. Each poller runs in its own goroutine; between calls to
// NextEvent it always sleeps at least MinInterval so that no producer can
// monopolise the queue or the device.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/monitoring"
)

// MinInterval is the floor applied to every poller's interval.
const MinInterval = 10 * time.Millisecond

// ErrStopped is returned by NextEvent when the poller has finished for good.
// An event returned alongside it is still delivered.
var ErrStopped = errors.New("poller stopped")

// Poller produces at most one event per call to NextEvent. NextEvent may
// block; clearing Active stops future emission but does not interrupt a
// call already in progress.
type Poller interface {
	Name() string
	Interval() time.Duration
	Active() bool
	NextEvent(ctx context.Context) (*events.Event, error)
}

// Base carries the bookkeeping shared by all pollers.
type Base struct {
	name     string
	interval time.Duration
	active   atomic.Bool
}

// NewBase returns a Base with interval raised to MinInterval if needed.
func NewBase(name string, interval time.Duration, active bool) *Base {
	if interval < MinInterval {
		interval = MinInterval
	}
	b := &Base{name: name, interval: interval}
	b.active.Store(active)
	return b
}

func (b *Base) Name() string            { return b.name }
func (b *Base) Interval() time.Duration { return b.interval }
func (b *Base) Active() bool            { return b.active.Load() }
func (b *Base) SetActive(on bool)       { b.active.Store(on) }

// Run drives p until ctx ends or p reports ErrStopped.
func Run(ctx context.Context, p Poller, q *Queue) {
	interval := max(p.Interval(), MinInterval)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for ctx.Err() == nil {
		if p.Active() {
			ev, err := p.NextEvent(ctx)
			stopped := errors.Is(err, ErrStopped)
			// a poller switched off mid-call drops its event, unless the
			// event is the poller's last word
			if ev != nil && (p.Active() || stopped) {
				q.Put(*ev)
			}
			if stopped {
				monitoring.Infof("poller %s stopped", p.Name())
				return
			}
			if err != nil && ctx.Err() == nil {
				monitoring.Warnf("poller %s: %v", p.Name(), err)
			}
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// Scheduler runs a set of pollers against one queue.
type Scheduler struct {
	queue *Queue

	mu      sync.Mutex
	ctx     context.Context
	pollers []Poller
	wg      sync.WaitGroup
}

// NewScheduler returns a scheduler feeding q.
func NewScheduler(q *Queue) *Scheduler {
	return &Scheduler{queue: q}
}

// Queue returns the shared queue.
func (s *Scheduler) Queue() *Queue {
	return s.queue
}

// Add registers p. If the scheduler is already running p starts at once.
func (s *Scheduler) Add(p Poller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		s.launch(s.ctx, p)
		return
	}
	s.pollers = append(s.pollers, p)
}

// Start launches every registered poller. The pollers stop when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	for _, p := range s.pollers {
		s.launch(ctx, p)
	}
}

func (s *Scheduler) launch(ctx context.Context, p Poller) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		Run(ctx, p, s.queue)
	}()
}

// Wait blocks until every launched poller has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
