// Package runctx holds the state shared by every task of a single run.
package runctx

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/pool"
)

// Reserved scratch keys.
const (
	// DeadCycleKey holds the dead-cycle counter.
	DeadCycleKey = "__atomic_dead_cycle"
	// FlowNameKey holds the name of the flow being run.
	FlowNameKey = "__flow_name"
)

// Output is one record emitted by an output node.
type Output struct {
	NodeID   string
	NodeName string
	Names    []string
	Values   []any
}

// Map returns the output as a name to value mapping.
func (o Output) Map() map[string]any {
	m := make(map[string]any, len(o.Names))
	for i, name := range o.Names {
		if i < len(o.Values) {
			m[name] = o.Values[i]
		}
	}
	return m
}

// Context is the per-run state. All methods are safe for concurrent use.
type Context struct {
	id        string
	root      *flow.Node
	pool      *pool.SubPool
	startedAt time.Time

	running atomic.Bool

	mu         sync.Mutex
	stopReason string
	outputs    []Output

	pending   *Queue
	instances Instances
	scratch   sync.Map
}

// New creates a running context for a run rooted at root.
func New(id string, root *flow.Node, sub *pool.SubPool) *Context {
	c := &Context{
		id:        id,
		root:      root,
		pool:      sub,
		startedAt: time.Now(),
		pending:   NewQueue(),
	}
	c.running.Store(true)
	return c
}

// ID returns the run identifier.
func (c *Context) ID() string { return c.id }

// Root returns the node the run started from.
func (c *Context) Root() *flow.Node { return c.root }

// Pool returns the sub-pool tasks of this run are submitted to.
func (c *Context) Pool() *pool.SubPool { return c.pool }

// StartedAt returns the creation time of the context.
func (c *Context) StartedAt() time.Time { return c.startedAt }

// Pending returns the queue of futures not yet processed by the coordinator.
func (c *Context) Pending() *Queue { return c.pending }

// Instances returns the per-node task instance counters of this run.
func (c *Context) Instances() *Instances { return &c.instances }

// IsRunning reports whether the run may still start and traverse tasks.
func (c *Context) IsRunning() bool {
	return c.running.Load()
}

// SetRunning clears the running flag when running is false. The flag only
// ever goes from true to false, so passing true has no effect.
func (c *Context) SetRunning(running bool) {
	if !running {
		c.Stop("")
	}
}

// Stop ends the run. The first non-empty reason is kept.
func (c *Context) Stop(reason string) {
	c.running.Store(false)
	c.mu.Lock()
	if c.stopReason == "" {
		c.stopReason = reason
	}
	c.mu.Unlock()
}

// StopReason returns why the run was stopped, or "" if it ended normally.
func (c *Context) StopReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopReason
}

// PushOutput appends an output record.
func (c *Context) PushOutput(o Output) {
	c.mu.Lock()
	c.outputs = append(c.outputs, o)
	c.mu.Unlock()
}

// Outputs returns a copy of the outputs in the order they were pushed.
func (c *Context) Outputs() []Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Output, len(c.outputs))
	copy(out, c.outputs)
	return out
}

// Get reads a scratch value.
func (c *Context) Get(key string) (any, bool) {
	return c.scratch.Load(key)
}

// Put stores a scratch value.
func (c *Context) Put(key string, value any) {
	c.scratch.Store(key, value)
}

// FlowName returns the name stored under FlowNameKey.
func (c *Context) FlowName() string {
	v, _ := c.Get(FlowNameKey)
	name, _ := v.(string)
	return name
}

// InstallDeadCycleCounter places a fresh dead-cycle counter in scratch.
func (c *Context) InstallDeadCycleCounter() *atomic.Int64 {
	counter := new(atomic.Int64)
	c.Put(DeadCycleKey, counter)
	return counter
}

// DeadCycleCounter returns the dead-cycle counter, or nil when the check is
// disabled for this run.
func (c *Context) DeadCycleCounter() *atomic.Int64 {
	v, ok := c.Get(DeadCycleKey)
	if !ok {
		return nil
	}
	counter, _ := v.(*atomic.Int64)
	return counter
}
