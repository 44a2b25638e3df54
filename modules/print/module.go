// Package print provides the "print" shape, which writes the evaluated
// attributes of the node to standard output.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "print"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives the printed lines. Defaults to os.Stdout.
	Out io.Writer
}

type handler struct {
	registry.Downstream
	reg *registry.Registry

	mu  sync.Mutex
	out io.Writer
}

func (h *handler) Shape() string { return Shape }
func (h *handler) Async() bool   { return false }

func (h *handler) Execute(ctx context.Context, node *flow.Node, _ *runctx.Context, vars map[string]any) error {
	ctxlog.FromContext(ctx).Info("Printing input", "node", node.ID)

	attrs := h.reg.Attrs(node, vars)
	names := attrs.Names()
	values := make([]any, len(names))
	for i, name := range names {
		v, _, err := attrs.Value(name)
		if err != nil {
			return err
		}
		values[i] = v
	}

	// Lines of one node stay together when branches print concurrently.
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(names) == 0 {
		fmt.Fprintln(h.out, "      (null)")
		return nil
	}
	for i, name := range names {
		fmt.Fprintf(h.out, "      %s = %q\n", name, fmt.Sprint(values[i]))
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	r.Register(&handler{reg: r, out: out})
}
