// Package output provides the "output" shape, which records the evaluated
// attributes of the node as one run output.
package output

import (
	"context"
	"fmt"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "output"

// Module implements the registry.Module interface for this package.
type Module struct{}

type handler struct {
	registry.Downstream
	reg *registry.Registry
}

func (h *handler) Shape() string { return Shape }
func (h *handler) Async() bool   { return false }

func (h *handler) Execute(ctx context.Context, node *flow.Node, rc *runctx.Context, vars map[string]any) error {
	attrs := h.reg.Attrs(node, vars)
	out := runctx.Output{NodeID: node.ID, NodeName: node.Name}
	for _, name := range attrs.Names() {
		v, _, err := attrs.Value(name)
		if err != nil {
			return fmt.Errorf("building output: %w", err)
		}
		out.Names = append(out.Names, name)
		out.Values = append(out.Values, v)
	}
	rc.PushOutput(out)
	ctxlog.FromContext(ctx).Debug("Output recorded.", "node", node.ID, "fields", len(out.Names))
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&handler{reg: r})
}
