// Package request provides the "request" shape, an HTTP call whose response
// is stored in the task variables as "resp".
//
// Attributes:
//
//	url       required
//	method    GET by default
//	headers   object of header values
//	params    object of query parameters
//	body      string sent as is, anything else is sent as JSON
//	body_file path of a file to upload; its content type follows the extension
//	timeout   duration string, 30s by default
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"resty.dev/v3"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "request"

// VarName is the variable the response is stored under.
const VarName = "resp"

// DefaultTimeout bounds a request when the node sets no timeout.
const DefaultTimeout = 30 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client is shared by every request node. When nil, a client with a
	// traced transport is created.
	Client *resty.Client
}

type handler struct {
	registry.Downstream
	reg    *registry.Registry
	client *resty.Client
}

func (h *handler) Shape() string { return Shape }
func (h *handler) Async() bool   { return true }

func (h *handler) Execute(ctx context.Context, node *flow.Node, _ *runctx.Context, vars map[string]any) error {
	attrs := h.reg.Attrs(node, vars)

	url, err := attrs.Require("url")
	if err != nil {
		return err
	}
	method, err := attrs.String("method", "GET")
	if err != nil {
		return err
	}
	method = strings.ToUpper(method)
	timeout, err := attrs.Duration("timeout", DefaultTimeout)
	if err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx).With("node", node.ID, "method", method, "url", url)
	logger.Debug("Making HTTP request")

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req := h.client.R().SetContext(reqCtx)

	headers, err := attrs.Map("headers")
	if err != nil {
		return err
	}
	req.SetHeaders(headers)
	params, err := attrs.Map("params")
	if err != nil {
		return err
	}
	req.SetQueryParams(params)

	if err := setBody(req, attrs); err != nil {
		return err
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	logger.Debug("Received HTTP response", "status", resp.StatusCode())

	vars[VarName] = responseValue(resp)
	return nil
}

func setBody(req *resty.Request, attrs registry.Attrs) error {
	path, err := attrs.String("body_file", "")
	if err != nil {
		return err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read body file '%s': %w", path, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		req.SetHeader("Content-Type", contentType).SetBody(data)
		return nil
	}

	body, ok, err := attrs.Value("body")
	if err != nil || !ok || body == nil {
		return err
	}
	if s, isStr := body.(string); isStr {
		req.SetBody(s)
		return nil
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	req.SetHeader("Content-Type", "application/json").SetBody(encoded)
	return nil
}

// responseValue renders a response as a plain map so expressions can reach
// resp.status_code, resp.body, resp.headers and resp.json.
func responseValue(resp *resty.Response) map[string]any {
	headers := make(map[string]any, len(resp.Header()))
	for k := range resp.Header() {
		headers[k] = resp.Header().Get(k)
	}
	body := resp.String()
	out := map[string]any{
		"status_code": resp.StatusCode(),
		"body":        body,
		"headers":     headers,
	}
	if strings.Contains(resp.Header().Get("Content-Type"), "json") {
		var decoded any
		if err := json.Unmarshal([]byte(body), &decoded); err == nil {
			out["json"] = decoded
		}
	}
	return out
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = resty.NewWithClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
	}
	r.Register(&handler{reg: r, client: client})
}
