package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/specialistvlad/flowgrid/internal/expr"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Handler implements the behaviour of one node shape.
type Handler interface {
	// Shape is the name flow definitions use to select this handler.
	Shape() string
	// Async reports whether tasks run on the worker pool. Sync handlers run
	// inline on the goroutine that dispatched them.
	Async() bool
	// Execute runs one task instance. vars is the task's private variable bag
	// and may be mutated; successors inherit it through transmitting edges.
	Execute(ctx context.Context, node *flow.Node, rc *runctx.Context, vars map[string]any) error
	// AllowDownstream is asked after a task completes and decides whether the
	// scheduler may traverse the node's outgoing edges.
	AllowDownstream(ctx context.Context, node *flow.Node, rc *runctx.Context, vars map[string]any) bool
}

// Downstream is embedded by handlers that always let traversal continue.
type Downstream struct{}

// AllowDownstream always returns true.
func (Downstream) AllowDownstream(context.Context, *flow.Node, *runctx.Context, map[string]any) bool {
	return true
}

// Module is the interface that all shape modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered handlers for a single application instance.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	evaluator expr.Evaluator
}

// New creates a registry. ev is handed to modules that evaluate node
// attributes; a nil ev selects the default HCL evaluator.
func New(ev expr.Evaluator) *Registry {
	if ev == nil {
		ev = expr.NewHCL()
	}
	return &Registry{
		handlers:  make(map[string]Handler),
		evaluator: ev,
	}
}

// Evaluator returns the expression evaluator shared by handlers.
func (r *Registry) Evaluator() expr.Evaluator {
	return r.evaluator
}

// Register adds a handler. Registering two handlers for one shape panics.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	shape := h.Shape()
	if _, exists := r.handlers[shape]; exists {
		panic(fmt.Sprintf("handler for shape '%s' already registered", shape))
	}
	slog.Debug("Registering shape handler.", "shape", shape, "async", h.Async())
	r.handlers[shape] = h
}

// Use registers every module in order.
func (r *Registry) Use(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// Lookup returns the handler for shape.
func (r *Registry) Lookup(shape string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[shape]
	return h, ok
}

// Shapes returns the sorted names of all registered shapes.
func (r *Registry) Shapes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shapes := make([]string, 0, len(r.handlers))
	for s := range r.handlers {
		shapes = append(shapes, s)
	}
	sort.Strings(shapes)
	return shapes
}

// MissingShapes returns the IDs of nodes in g whose non-empty shape has no
// registered handler. Such nodes stop a run when the scheduler reaches them.
func (r *Registry) MissingShapes(g *flow.Graph) []string {
	var missing []string
	for _, n := range g.Nodes() {
		shape := n.Shape()
		if shape == "" {
			continue
		}
		if _, ok := r.Lookup(shape); !ok {
			missing = append(missing, n.ID)
		}
	}
	return missing
}
