// Package strategy decides the order in which a run's queued and completed
// tasks are processed.
package strategy

import (
	"strings"

	"github.com/specialistvlad/flowgrid/internal/flow"
)

// Names of the built-in strategies.
const (
	Random = "random"
	Linked = "linked"
	Child  = "child"
	Parent = "parent"
)

// Item is anything the scheduler orders: a queued task or a completed future.
type Item interface {
	Node() *flow.Node
	// Seq is the submission sequence number, unique per sub-pool.
	Seq() uint64
}

// Backlog holds tasks waiting for a free worker. Implementations are not
// safe for concurrent use; the owning sub-pool serialises access.
type Backlog interface {
	Push(Item)
	Pop() (Item, bool)
	Len() int
}

// Strategy orders completions (Compare) and pending work (NewBacklog).
type Strategy interface {
	Name() string
	// Compare returns a negative number when a should be handled before b,
	// a positive number when b goes first and 0 when there is no preference.
	Compare(a, b Item) int
	NewBacklog() Backlog
}

// New returns a fresh strategy for name. Unknown or empty names select
// Random. Matching is case-insensitive.
func New(name string) Strategy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Linked:
		return linked{}
	case Child:
		return depthFirst{deepest: true}
	case Parent:
		return depthFirst{deepest: false}
	default:
		return random{}
	}
}

// Names lists the accepted strategy names.
func Names() []string {
	return []string{Random, Linked, Child, Parent}
}

// Valid reports whether name selects a known strategy. The empty string is
// valid and means Random.
func Valid(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return true
	}
	for _, known := range Names() {
		if n == known {
			return true
		}
	}
	return false
}

type random struct{}

func (random) Name() string          { return Random }
func (random) Compare(_, _ Item) int { return 0 }
func (random) NewBacklog() Backlog   { return &randomBacklog{} }

type linked struct{}

func (linked) Name() string { return Linked }

func (linked) Compare(a, b Item) int {
	return cmpUint(a.Seq(), b.Seq())
}

func (linked) NewBacklog() Backlog { return &fifoBacklog{} }

// depthFirst prefers deeper nodes (child) or shallower nodes (parent).
type depthFirst struct {
	deepest bool
}

func (d depthFirst) Name() string {
	if d.deepest {
		return Child
	}
	return Parent
}

func (d depthFirst) Compare(a, b Item) int {
	da, db := a.Node().Depth(), b.Node().Depth()
	if da != db {
		if d.deepest {
			return db - da
		}
		return da - db
	}
	// Child favours the newest item among equals, parent the oldest.
	if d.deepest {
		return cmpUint(b.Seq(), a.Seq())
	}
	return cmpUint(a.Seq(), b.Seq())
}

func (d depthFirst) NewBacklog() Backlog {
	return &heapBacklog{less: func(a, b Item) bool { return d.Compare(a, b) < 0 }}
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
