package poller

import (
	"context"
	"sync"

	"github.com/stocky-devel/stocky/internal/events"
)

// Queue is an unbounded FIFO of events. Put never blocks and is safe from
// any goroutine; Get is meant for a single consumer.
type Queue struct {
	mu     sync.Mutex
	items  []events.Event
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Put appends ev.
func (q *Queue) Put(ev events.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Get removes and returns the oldest event, waiting until one is available
// or ctx ends.
func (q *Queue) Get(ctx context.Context) (events.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = events.Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return events.Event{}, ctx.Err()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
