package listener

import (
	"context"
	"time"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Log reports run boundaries through the context logger.
type Log struct{}

// BeforeStart implements the scheduler's Listener.
func (Log) BeforeStart(ctx context.Context, rc *runctx.Context) error {
	ctxlog.FromContext(ctx).Debug("Listener observed run start.", "run_id", rc.ID(), "flow", rc.FlowName())
	return nil
}

// AfterEnd implements the scheduler's Listener.
func (Log) AfterEnd(ctx context.Context, rc *runctx.Context) error {
	logger := ctxlog.FromContext(ctx)
	args := []any{
		"run_id", rc.ID(),
		"flow", rc.FlowName(),
		"duration", time.Since(rc.StartedAt()),
		"outputs", len(rc.Outputs()),
	}
	if reason := rc.StopReason(); reason != "" {
		logger.Warn("Run ended early.", append(args, "reason", reason)...)
		return nil
	}
	logger.Debug("Listener observed run end.", args...)
	return nil
}
