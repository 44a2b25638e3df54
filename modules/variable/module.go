// Package variable provides the "variable" shape. Every attribute of the node
// is evaluated in declaration order and stored in the task variables, so later
// attributes can refer to earlier ones.
package variable

import (
	"context"
	"fmt"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "variable"

// Module implements the registry.Module interface for this package.
type Module struct{}

type handler struct {
	registry.Downstream
	reg *registry.Registry
}

func (h *handler) Shape() string { return Shape }
func (h *handler) Async() bool   { return false }

func (h *handler) Execute(ctx context.Context, node *flow.Node, _ *runctx.Context, vars map[string]any) error {
	logger := ctxlog.FromContext(ctx)
	attrs := h.reg.Attrs(node, vars)
	for _, name := range attrs.Names() {
		v, _, err := attrs.Value(name)
		if err != nil {
			return fmt.Errorf("setting variable %s: %w", name, err)
		}
		vars[name] = v
		logger.Debug("Variable set.", "node", node.ID, "name", name)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&handler{reg: r})
}
