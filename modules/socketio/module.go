// Package socketio provides the "socketio" shape. The node connects to a
// Socket.IO server, optionally emits one event, waits for another and stores
// its payload as "socket".
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "socketio"

// VarName is the variable the received payload is stored under.
const VarName = "socket"

// DefaultTimeout bounds the whole exchange when the node sets no timeout.
const DefaultTimeout = 10 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// input is the evaluated configuration of one socketio node.
type input struct {
	URL                string
	Namespace          string
	OnEvent            string
	EmitEvent          string
	EmitData           any
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// opResult is a private struct to safely pass results through the done channel.
type opResult struct {
	value any
	err   error
}

type handler struct {
	registry.Downstream
	reg *registry.Registry
}

func (h *handler) Shape() string { return Shape }
func (h *handler) Async() bool   { return true }

func (h *handler) Execute(ctx context.Context, node *flow.Node, _ *runctx.Context, vars map[string]any) error {
	in, err := readInput(h.reg.Attrs(node, vars))
	if err != nil {
		return err
	}
	v, err := exchange(ctx, in)
	if err != nil {
		return err
	}
	vars[VarName] = v
	return nil
}

func readInput(attrs registry.Attrs) (*input, error) {
	var (
		in  input
		err error
	)
	if in.URL, err = attrs.Require("url"); err != nil {
		return nil, err
	}
	if in.OnEvent, err = attrs.Require("on_event"); err != nil {
		return nil, err
	}
	if in.Namespace, err = attrs.String("namespace", "/"); err != nil {
		return nil, err
	}
	if in.EmitEvent, err = attrs.String("emit_event", ""); err != nil {
		return nil, err
	}
	if in.EmitData, _, err = attrs.Value("emit_data"); err != nil {
		return nil, err
	}
	if in.Timeout, err = attrs.Duration("timeout", DefaultTimeout); err != nil {
		return nil, err
	}
	if in.InsecureSkipVerify, err = attrs.Bool("insecure_skip_verify", false); err != nil {
		return nil, err
	}
	return &in, nil
}

func exchange(ctx context.Context, in *input) (any, error) {
	logger := ctxlog.FromContext(ctx).With("shape", Shape, "url", in.URL, "onEvent", in.OnEvent, "emitEvent", in.EmitEvent)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	parsedURL, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("failed to parse URL: %q is not absolute", in.URL)
	}

	var isConnected atomic.Bool
	done := make(chan opResult, 1)
	opCtx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(in.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	// Only the first result matters; later sends are dropped.
	report := func(r opResult) {
		select {
		case done <- r:
		default:
		}
	}

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Debug("Successfully connected", "namespace", in.Namespace, "sid", io.Id())
		if in.EmitEvent != "" {
			io.Emit(in.EmitEvent, in.EmitData)
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				report(opResult{err: fmt.Errorf("connection failed: %w", e)})
				return
			}
		}
		report(opResult{err: fmt.Errorf("connection failed: %v", errs)})
	})
	io.On(types.EventName(in.OnEvent), func(data ...any) {
		var responseData any
		if len(data) > 0 {
			responseData = data[0]
		}
		report(opResult{value: responseData})
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return nil, fmt.Errorf("timed out after connecting while waiting for event '%s'", in.OnEvent)
		}
		return nil, fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		return res.value, res.err
	}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&handler{reg: r})
}
