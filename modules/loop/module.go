// Package loop provides the "loop" shape. The node itself does nothing; the
// scheduler expands its loop_count into one task per iteration, and each
// iteration forwards its own variables downstream.
package loop

import (
	"context"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "loop"

// Module implements the registry.Module interface for this package.
type Module struct{}

type handler struct{ registry.Downstream }

func (handler) Shape() string { return Shape }
func (handler) Async() bool   { return false }

func (handler) Execute(ctx context.Context, node *flow.Node, _ *runctx.Context, vars map[string]any) error {
	ctxlog.FromContext(ctx).Debug("Loop iteration.", "node", node.ID, "item", vars[node.Config.String(flow.KeyLoopItem, "item")])
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(handler{})
}
