package scheduler

import (
	"context"
	"strings"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
)

// edgeAllows reports whether the edge e may be traversed with vars. The root
// dispatch has no edge and always proceeds.
func (s *Scheduler) edgeAllows(ctx context.Context, e *flow.Edge, vars map[string]any) bool {
	if e == nil {
		return true
	}
	if !e.Exception.Allows(vars[ExceptionKey] != nil) {
		return false
	}
	condition := strings.TrimSpace(e.Condition)
	if condition == "" {
		return true
	}

	logger := ctxlog.FromContext(ctx)
	result, err := s.evaluator.Evaluate(condition, vars)
	if err != nil {
		logger.Error("Failed to evaluate edge condition.", "from", e.From.ID, "to", e.To.ID, "condition", condition, "error", err)
		return false
	}
	allowed := result == true || result == "true"
	logger.Debug("Edge condition evaluated.", "from", e.From.ID, "to", e.To.ID, "condition", condition, "result", allowed)
	return allowed
}
