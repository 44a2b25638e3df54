package flow

// Well-known configuration keys read by the scheduler.
const (
	KeyShape          = "shape"
	KeyName           = "name"
	KeyThreads        = "threads"
	KeySubmitStrategy = "submit_strategy"
	KeyLoopCount      = "loop_count"
	KeyLoopStart      = "loop_start"
	KeyLoopEnd        = "loop_end"
	KeyLoopVariable   = "loop_variable"
	KeyLoopItem       = "loop_item"
)

// MetaKeys lists the keys that must hold static literals rather than
// expressions.
var MetaKeys = []string{
	KeyShape, KeyName, KeyThreads, KeySubmitStrategy,
	KeyLoopStart, KeyLoopEnd, KeyLoopVariable, KeyLoopItem,
}

// IsMetaKey reports whether key is one of MetaKeys.
func IsMetaKey(key string) bool {
	for _, k := range MetaKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Node is a single vertex in a flow graph. Its fields are fixed once the
// owning graph is sealed, so one graph may back any number of concurrent runs.
type Node struct {
	// ID is the unique identifier of the node within its graph.
	ID string
	// Name is the human-readable label. Defaults to ID.
	Name string
	// Config holds the ordered configuration values of the node.
	Config *Config

	out   []*Edge
	in    []*Edge
	depth int
}

// NewNode creates a node with an empty configuration.
func NewNode(id string) *Node {
	return &Node{ID: id, Name: id, Config: NewConfig()}
}

// Shape returns the kind tag that selects the node's handler. An empty shape
// marks a pass-through node.
func (n *Node) Shape() string {
	return n.Config.String(KeyShape, "")
}

// Edges returns the outgoing edges in declaration order.
func (n *Node) Edges() []*Edge {
	return n.out
}

// Incoming returns the incoming edges in declaration order.
func (n *Node) Incoming() []*Edge {
	return n.in
}

// Next returns the direct successors in declaration order.
func (n *Node) Next() []*Node {
	next := make([]*Node, 0, len(n.out))
	for _, e := range n.out {
		next = append(next, e.To)
	}
	return next
}

// EdgeFrom returns the edge that connects from to this node.
func (n *Node) EdgeFrom(from *Node) (*Edge, bool) {
	for _, e := range n.in {
		if e.From == from {
			return e, true
		}
	}
	return nil, false
}

// Depth returns the shortest distance from the graph root, computed when the
// graph was sealed. Unreachable nodes report 0.
func (n *Node) Depth() int {
	return n.depth
}
