package pool

import (
	"context"
	"sync"

	"github.com/specialistvlad/flowgrid/internal/flow"
)

// Future is the handle of one submitted task.
type Future struct {
	node *flow.Node
	seq  uint64

	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newFuture(node *flow.Node, seq uint64) *Future {
	return &Future{node: node, seq: seq, done: make(chan struct{})}
}

// Node returns the node the task belongs to.
func (f *Future) Node() *flow.Node { return f.node }

// Seq returns the submission sequence number within the sub-pool.
func (f *Future) Seq() uint64 { return f.seq }

// Done reports without blocking whether the task has settled.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task settles or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Value returns the task result. It is nil until the future is done.
func (f *Future) Value() any {
	if !f.Done() {
		return nil
	}
	return f.value
}

// Err returns the task error. It is nil until the future is done.
func (f *Future) Err() error {
	if !f.Done() {
		return nil
	}
	return f.err
}

func (f *Future) settle(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}
