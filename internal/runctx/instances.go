package runctx

import (
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/flowgrid/internal/flow"
)

// Instances counts the spawned task instances of each node that have not
// completed yet. Counters belong to one run, so concurrent runs of the same
// graph never see each other's tasks. The zero value is ready to use.
type Instances struct {
	counters sync.Map // *flow.Node -> *atomic.Int64
}

func (in *Instances) counter(n *flow.Node) *atomic.Int64 {
	if v, ok := in.counters.Load(n); ok {
		return v.(*atomic.Int64)
	}
	v, _ := in.counters.LoadOrStore(n, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Increment records a newly spawned task instance of n.
func (in *Instances) Increment(n *flow.Node) int64 {
	return in.counter(n).Add(1)
}

// Decrement records a completed task instance of n. The counter never drops
// below zero.
func (in *Instances) Decrement(n *flow.Node) int64 {
	c := in.counter(n)
	for {
		cur := c.Load()
		if cur <= 0 {
			return 0
		}
		if c.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// Pending returns the number of unfinished task instances of n.
func (in *Instances) Pending(n *flow.Node) int64 {
	if v, ok := in.counters.Load(n); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// Settled reports whether n and every node upstream of it have no unfinished
// task instances.
func (in *Instances) Settled(n *flow.Node) bool {
	visited := make(map[*flow.Node]struct{})
	var walk func(*flow.Node) bool
	walk = func(cur *flow.Node) bool {
		if _, seen := visited[cur]; seen {
			return true
		}
		visited[cur] = struct{}{}
		if in.Pending(cur) > 0 {
			return false
		}
		for _, e := range cur.Incoming() {
			if !walk(e.From) {
				return false
			}
		}
		return true
	}
	return walk(n)
}

// PredecessorsSettled is Settled without n's own counter. Join handlers use
// it to decide when all expected upstream branches are done.
func (in *Instances) PredecessorsSettled(n *flow.Node) bool {
	for _, e := range n.Incoming() {
		if !in.Settled(e.From) {
			return false
		}
	}
	return true
}
