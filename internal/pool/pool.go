// Package pool implements the two-level worker pool used by runs: a
// process-wide budget of worker permits and per-run sub-pools that draw from it.
package pool

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/specialistvlad/flowgrid/internal/strategy"
)

// ErrPoolClosed is returned when a task is submitted to a closed sub-pool.
var ErrPoolClosed = errors.New("pool is closed")

// Pool is the process-wide worker budget shared by all concurrent runs.
type Pool struct {
	sem   *semaphore.Weighted
	total int
}

// New creates a pool that never runs more than total worker tasks at once.
// Values below one are raised to one.
func New(total int) *Pool {
	if total < 1 {
		total = 1
	}
	return &Pool{
		sem:   semaphore.NewWeighted(int64(total)),
		total: total,
	}
}

// Total returns the size of the budget.
func (p *Pool) Total() int {
	return p.total
}

// NewSubPool carves a per-run pool of size slots out of p. One slot is
// reserved for the coordinator, so at most size-1 tasks of this sub-pool run
// at the same time. Each running task additionally holds one permit of p.
// ctx bounds waiting for permits; once it is done, queued tasks settle with
// its error.
func (p *Pool) NewSubPool(ctx context.Context, size int, s strategy.Strategy) *SubPool {
	if size < 2 {
		size = 2
	}
	if s == nil {
		s = strategy.New("")
	}
	return &SubPool{
		parent:   p,
		ctx:      ctx,
		strategy: s,
		backlog:  s.NewBacklog(),
		workers:  size - 1,
	}
}
