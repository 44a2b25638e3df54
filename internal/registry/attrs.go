package registry

import (
	"fmt"
	"time"

	"github.com/specialistvlad/flowgrid/internal/expr"
	"github.com/specialistvlad/flowgrid/internal/flow"
)

// Attrs evaluates node attributes for a handler.
type Attrs struct {
	ev   expr.Evaluator
	node *flow.Node
	vars map[string]any
}

// Attrs binds the registry's evaluator to one task.
func (r *Registry) Attrs(node *flow.Node, vars map[string]any) Attrs {
	return Attrs{ev: r.evaluator, node: node, vars: vars}
}

// IsScheduling reports whether key is consumed by the scheduler rather than
// by handlers.
func IsScheduling(key string) bool {
	return flow.IsMetaKey(key) || key == flow.KeyLoopCount
}

// Names returns the handler attributes of the node in declaration order.
func (a Attrs) Names() []string {
	var names []string
	for _, k := range a.node.Config.Keys() {
		if !IsScheduling(k) {
			names = append(names, k)
		}
	}
	return names
}

// Value evaluates key. ok is false when the node does not set it.
func (a Attrs) Value(key string) (v any, ok bool, err error) {
	text, ok := a.node.Config.Get(key)
	if !ok {
		return nil, false, nil
	}
	v, err = a.ev.Evaluate(text, a.vars)
	if err != nil {
		return nil, true, fmt.Errorf("attribute %q: %w", key, err)
	}
	return v, true, nil
}

// String evaluates key as a string, returning def when it is unset or null.
func (a Attrs) String(key, def string) (string, error) {
	v, ok, err := a.Value(key)
	if err != nil || !ok || v == nil {
		return def, err
	}
	if s, isStr := v.(string); isStr {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// Require evaluates key as a non-empty string.
func (a Attrs) Require(key string) (string, error) {
	s, err := a.String(key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("attribute %q is required", key)
	}
	return s, nil
}

// Bool evaluates key as a boolean.
func (a Attrs) Bool(key string, def bool) (bool, error) {
	v, ok, err := a.Value(key)
	if err != nil || !ok || v == nil {
		return def, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return b == "true", nil
	}
	return false, fmt.Errorf("attribute %q: expected bool, got %T", key, v)
}

// Duration evaluates key as a Go duration string such as "5s".
func (a Attrs) Duration(key string, def time.Duration) (time.Duration, error) {
	s, err := a.String(key, "")
	if err != nil || s == "" {
		return def, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("attribute %q: %w", key, err)
	}
	return d, nil
}

// Map evaluates key as an object and renders every value as a string.
func (a Attrs) Map(key string) (map[string]string, error) {
	v, ok, err := a.Value(key)
	if err != nil || !ok || v == nil {
		return nil, err
	}
	m, isMap := v.(map[string]any)
	if !isMap {
		return nil, fmt.Errorf("attribute %q: expected object, got %T", key, v)
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, isStr := val.(string); isStr {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(val)
	}
	return out, nil
}
