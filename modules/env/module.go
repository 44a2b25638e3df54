// Package env provides the "env" shape, which exposes the process
// environment to the flow as the "env" variable.
package env

import (
	"context"
	"os"
	"strings"

	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "env"

// VarName is the variable the environment is stored under.
const VarName = "env"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Environ overrides os.Environ, mainly for tests.
	Environ func() []string
}

type handler struct {
	registry.Downstream
	environ func() []string
}

func (h *handler) Shape() string { return Shape }
func (h *handler) Async() bool   { return false }

func (h *handler) Execute(_ context.Context, _ *flow.Node, _ *runctx.Context, vars map[string]any) error {
	envMap := make(map[string]any)
	for _, e := range h.environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = pair[1]
		}
	}
	vars[VarName] = envMap
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	environ := m.Environ
	if environ == nil {
		environ = os.Environ
	}
	r.Register(&handler{environ: environ})
}
