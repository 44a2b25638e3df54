// Package join provides the "join" shape, which waits for every upstream
// branch before letting traversal continue.
package join

import (
	"context"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "join"

// Module implements the registry.Module interface for this package.
type Module struct{}

type handler struct{}

func (handler) Shape() string { return Shape }
func (handler) Async() bool   { return false }

func (handler) Execute(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
	return nil
}

// AllowDownstream lets only the arrival that finds the join and all of its
// predecessors settled continue. Earlier arrivals end their branch here.
func (handler) AllowDownstream(ctx context.Context, node *flow.Node, rc *runctx.Context, _ map[string]any) bool {
	in := rc.Instances()
	if in.Pending(node) == 0 && in.PredecessorsSettled(node) {
		return true
	}
	ctxlog.FromContext(ctx).Debug("Join waiting for upstream branches.", "node", node.ID, "pending", in.Pending(node))
	return false
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(handler{})
}
