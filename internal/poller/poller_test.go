package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/testutil"
)

type countingPoller struct {
	*Base
	calls     atomic.Int32
	stopAfter int32
}

func (c *countingPoller) NextEvent(context.Context) (*events.Event, error) {
	n := c.calls.Add(1)
	ev := events.Must(events.KindTimerTick, c.Name())
	if c.stopAfter > 0 && n >= c.stopAfter {
		return &ev, ErrStopped
	}
	return &ev, nil
}

func TestNewBase_EnforcesFloor(t *testing.T) {
	b := NewBase("x", 0, true)
	assert.Equal(t, MinInterval, b.Interval())
	b = NewBase("y", time.Nanosecond, false)
	assert.Equal(t, MinInterval, b.Interval())
	assert.False(t, b.Active())
	b.SetActive(true)
	assert.True(t, b.Active())
	assert.Equal(t, time.Second, NewBase("z", time.Second, true).Interval())
}

func TestRun_StopsOnErrStoppedAfterDelivering(t *testing.T) {
	q := NewQueue()
	p := &countingPoller{Base: NewBase("p", 0, true), stopAfter: 3}

	done := make(chan struct{})
	go func() {
		Run(context.Background(), p, q)
		close(done)
	}()
	testutil.Recv(t, done)
	assert.Equal(t, 3, q.Len())
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestRun_InactivePollerNotCalled(t *testing.T) {
	q := NewQueue()
	p := &countingPoller{Base: NewBase("p", 0, false)}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	Run(ctx, p, q)
	assert.Zero(t, p.calls.Load())
	assert.Zero(t, q.Len())
}

func TestRun_YieldsBetweenCalls(t *testing.T) {
	q := NewQueue()
	p := &countingPoller{Base: NewBase("p", 0, true)}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	Run(ctx, p, q)
	// 100ms at a 10ms floor leaves room for at most ~11 calls
	assert.LessOrEqual(t, p.calls.Load(), int32(12))
	assert.Positive(t, p.calls.Load())
}

func TestScheduler_PreservesPerPollerOrder(t *testing.T) {
	q := NewQueue()
	s := NewScheduler(q)
	a := &countingPoller{Base: NewBase("a", 0, true), stopAfter: 5}
	b := &countingPoller{Base: NewBase("b", 0, true), stopAfter: 5}
	s.Add(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Add(b)
	s.Wait()

	require.Equal(t, 10, q.Len())
	seen := map[string]int{}
	for range 10 {
		ev, err := q.Get(ctx)
		require.NoError(t, err)
		seen[ev.Data.(string)]++
	}
	assert.Equal(t, map[string]int{"a": 5, "b": 5}, seen)
	assert.Same(t, q, s.Queue())
}

func TestQueue_FIFOAndConcurrentPut(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				q.Put(events.Must(events.KindTimerTick, i*1000+j))
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 800, q.Len())

	last := map[int]int{}
	for range 800 {
		ev, err := q.Get(context.Background())
		require.NoError(t, err)
		v := ev.Data.(int)
		producer, seq := v/1000, v%1000
		if prev, ok := last[producer]; ok {
			assert.Greater(t, seq, prev)
		}
		last[producer] = seq
	}
}

func TestQueue_GetWaitsAndHonoursContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan events.Event, 1)
	go func() {
		ev, _ := q.Get(context.Background())
		got <- ev
	}()
	time.Sleep(10 * time.Millisecond)
	q.Put(events.Must(events.KindEndSession, nil))
	assert.Equal(t, events.KindEndSession, testutil.Recv(t, got).Kind)
}
