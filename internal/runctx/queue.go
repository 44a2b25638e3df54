package runctx

import (
	"sync"

	"github.com/specialistvlad/flowgrid/internal/pool"
	"github.com/specialistvlad/flowgrid/internal/strategy"
)

// Queue is the run's list of futures awaiting processing by the coordinator.
type Queue struct {
	mu    sync.Mutex
	items []*pool.Future
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a future.
func (q *Queue) Push(f *pool.Future) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()
}

// Len returns the number of queued futures.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue holds no futures.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// TakeDone removes and returns the preferred settled future according to s.
// Among futures s does not distinguish, the earliest queued one wins. It
// returns false when no queued future has settled yet.
func (q *Queue) TakeDone(s strategy.Strategy) (*pool.Future, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, f := range q.items {
		if !f.Done() {
			continue
		}
		if best < 0 || s.Compare(f, q.items[best]) < 0 {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	f := q.items[best]
	q.items = append(q.items[:best], q.items[best+1:]...)
	return f, true
}
