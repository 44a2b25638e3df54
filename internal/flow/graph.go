// Package flow holds the in-memory model of a flow: nodes, the edges between
// them and the per-node counters the scheduler maintains during a run.
package flow

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSealed is returned when a sealed graph is modified.
var ErrSealed = errors.New("graph is sealed")

// Graph owns every node of a flow for its whole lifetime.
type Graph struct {
	// Name identifies the flow, e.g. for run history.
	Name string

	mutex  sync.RWMutex
	nodes  map[string]*Node
	order  []*Node
	root   *Node
	sealed bool
}

// NewGraph creates and returns an initialized, empty Graph.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:  name,
		nodes: make(map[string]*Node),
	}
}

// AddNode adds a node to the graph. Adding a node whose ID already exists is
// an error.
func (g *Graph) AddNode(n *Node) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.sealed {
		return ErrSealed
	}
	if n == nil || n.ID == "" {
		return errors.New("node must have an id")
	}
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("duplicate node id: %s", n.ID)
	}
	if n.Config == nil {
		n.Config = NewConfig()
	}
	if n.Name == "" {
		n.Name = n.ID
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n)
	return nil
}

// AddEdge creates a directed edge between two existing nodes and returns it so
// the caller can set its guard and routing. Self loops are permitted; runaway
// repetition is bounded by the scheduler's dead-cycle ceiling.
func (g *Graph) AddEdge(fromID, toID string) (*Edge, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.sealed {
		return nil, ErrSealed
	}
	from, ok := g.nodes[fromID]
	if !ok {
		return nil, fmt.Errorf("source node not found: %s", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return nil, fmt.Errorf("destination node not found: %s", toID)
	}
	if _, exists := to.EdgeFrom(from); exists {
		return nil, fmt.Errorf("duplicate edge: %s -> %s", fromID, toID)
	}

	e := &Edge{From: from, To: to, Transmit: true}
	from.out = append(from.out, e)
	to.in = append(to.in, e)
	return e, nil
}

// SetRoot marks the node the scheduler starts from.
func (g *Graph) SetRoot(id string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("root node not found: %s", id)
	}
	g.root = n
	return nil
}

// Root returns the root node, or nil if none was set.
func (g *Graph) Root() *Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.root
}

// Node looks up a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]*Node, len(g.order))
	copy(out, g.order)
	return out
}

// Seal freezes the topology and computes node depths by breadth-first search
// from the root. A graph without a root is rejected.
func (g *Graph) Seal() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.root == nil {
		return errors.New("graph has no root node")
	}

	for _, n := range g.order {
		n.depth = 0
	}
	seen := map[*Node]bool{g.root: true}
	queue := []*Node{g.root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range cur.out {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			e.To.depth = cur.depth + 1
			queue = append(queue, e.To)
		}
	}
	g.sealed = true
	return nil
}

// DetectCycles checks the graph for any cycles. Cycles are legal in a flow
// but callers may want to warn about them. The error names the first node
// found on a cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	permanent := make(map[*Node]bool)
	temporary := make(map[*Node]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n] {
			return nil
		}
		if temporary[n] {
			return fmt.Errorf("cycle detected involving node '%s'", n.ID)
		}
		temporary[n] = true
		for _, e := range n.out {
			if err := visit(e.To); err != nil {
				return err
			}
		}
		delete(temporary, n)
		permanent[n] = true
		return nil
	}

	for _, n := range g.order {
		if !permanent[n] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
