// Package start provides the "start" shape, a no-op root node.
package start

import (
	"context"

	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "start"

// Module implements the registry.Module interface for this package.
type Module struct{}

type handler struct{ registry.Downstream }

func (handler) Shape() string { return Shape }
func (handler) Async() bool   { return false }

func (handler) Execute(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(handler{})
}
