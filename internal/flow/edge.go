package flow

import (
	"fmt"
	"strings"
)

// ExceptionRouting restricts when an edge may be traversed relative to a
// failure recorded by the upstream task.
type ExceptionRouting int

const (
	// ExceptionNone means the edge ignores upstream failures.
	ExceptionNone ExceptionRouting = iota
	// ExceptionOnly means the edge is taken only when the upstream task failed.
	ExceptionOnly
	// SuccessOnly means the edge is taken only when the upstream task succeeded.
	SuccessOnly
)

// String returns the configuration spelling of the routing.
func (r ExceptionRouting) String() string {
	switch r {
	case ExceptionOnly:
		return "on_error"
	case SuccessOnly:
		return "on_success"
	default:
		return "none"
	}
}

// ParseExceptionRouting accepts "on_error"/"on_success" and the legacy numeric
// spellings "1"/"2". An empty string or "none" yields ExceptionNone.
func ParseExceptionRouting(s string) (ExceptionRouting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "0":
		return ExceptionNone, nil
	case "on_error", "1":
		return ExceptionOnly, nil
	case "on_success", "2":
		return SuccessOnly, nil
	default:
		return ExceptionNone, fmt.Errorf("unknown exception routing %q", s)
	}
}

// Allows reports whether a task outcome satisfies the routing.
func (r ExceptionRouting) Allows(hasException bool) bool {
	switch r {
	case ExceptionOnly:
		return hasException
	case SuccessOnly:
		return !hasException
	default:
		return true
	}
}

// Edge is a directed connection between two nodes.
type Edge struct {
	From *Node
	To   *Node

	// Condition is the guard expression source. Empty means "always".
	Condition string
	// Exception restricts traversal by the upstream outcome.
	Exception ExceptionRouting
	// Transmit controls whether To inherits the variables of From.
	Transmit bool
}
