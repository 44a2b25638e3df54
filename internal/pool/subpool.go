package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/strategy"
)

// Task is the unit of work executed by a sub-pool worker.
type Task func() (any, error)

// job is a queued task. It embeds its future so that the strategy backlog can
// order it by node and sequence.
type job struct {
	*Future
	fn Task
}

// SubPool is the per-run pool. Submissions never block the caller; tasks wait
// in a strategy-ordered backlog until a worker picks them up.
type SubPool struct {
	parent   *Pool
	ctx      context.Context
	strategy strategy.Strategy
	workers  int

	seq atomic.Uint64
	wg  sync.WaitGroup

	mu          sync.Mutex
	backlog     strategy.Backlog
	active      int
	closed      bool
	coordinated bool
}

// Strategy returns the strategy the sub-pool orders its backlog with.
func (s *SubPool) Strategy() strategy.Strategy {
	return s.strategy
}

// Workers returns the number of slots available to worker tasks.
func (s *SubPool) Workers() int {
	return s.workers
}

// SubmitAsync queues fn for node and returns its future.
func (s *SubPool) SubmitAsync(node *flow.Node, fn Task) (*Future, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrPoolClosed
	}
	f := newFuture(node, s.seq.Add(1))
	s.wg.Add(1)
	s.backlog.Push(&job{Future: f, fn: fn})
	spawn := s.active < s.workers
	if spawn {
		s.active++
	}
	s.mu.Unlock()

	if spawn {
		go s.work()
	}
	return f, nil
}

// Completed returns an already settled future for work that ran inline.
func (s *SubPool) Completed(node *flow.Node, value any) *Future {
	f := newFuture(node, s.seq.Add(1))
	f.settle(value, nil)
	return f
}

// Coordinate runs fn on the reserved coordinator slot. It does not consume a
// permit of the parent pool. Only one coordinator may be started.
func (s *SubPool) Coordinate(fn func()) (*Future, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if s.coordinated {
		s.mu.Unlock()
		return nil, fmt.Errorf("coordinator already running")
	}
	s.coordinated = true
	s.mu.Unlock()

	f := newFuture(nil, 0)
	go func() {
		f.settle(call(func() (any, error) {
			fn()
			return nil, nil
		}))
	}()
	return f, nil
}

// AwaitTermination blocks until every task submitted so far has settled or
// ctx is done.
func (s *SubPool) AwaitTermination(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further submissions. Queued tasks still run.
func (s *SubPool) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *SubPool) work() {
	for {
		s.mu.Lock()
		it, ok := s.backlog.Pop()
		if !ok {
			s.active--
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.run(it.(*job))
	}
}

func (s *SubPool) run(j *job) {
	defer s.wg.Done()
	if err := s.parent.sem.Acquire(s.ctx, 1); err != nil {
		j.settle(nil, fmt.Errorf("waiting for worker: %w", err))
		return
	}
	defer s.parent.sem.Release(1)
	j.settle(call(j.fn))
}

func call(fn Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn()
}
