package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/listener"
	"github.com/specialistvlad/flowgrid/internal/runctx"
	"github.com/specialistvlad/flowgrid/internal/scheduler"
)

// outputLine is the JSON shape of one printed run output.
type outputLine struct {
	Node   string         `json:"node"`
	Name   string         `json:"name"`
	Values map[string]any `json:"values"`
}

// Run executes the loaded flow once and prints its outputs as JSON lines.
// A run that stopped early is reported as an error.
func (a *App) Run(ctx context.Context) (*runctx.Context, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		if _, err := a.startHealthCheckServer(a.config.HealthcheckPort); err != nil {
			return nil, err
		}
	}

	listeners := []scheduler.Listener{listener.Log{}, listener.NewTracing()}
	if a.history != nil {
		listeners = append(listeners, a.history)
	}
	sched := scheduler.New(a.pool, a.registry, a.config.Settings, scheduler.WithListeners(listeners...))

	a.logger.Info("🚀 Starting flow run...")
	rc, err := sched.Run(ctx, a.graph, a.config.Vars)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.", "run_id", rc.ID())

	enc := json.NewEncoder(a.outW)
	for _, out := range rc.Outputs() {
		line := outputLine{Node: out.NodeID, Name: out.NodeName, Values: out.Map()}
		if err := enc.Encode(line); err != nil {
			a.logger.Error("Failed to print output.", "node", out.NodeID, "error", err)
		}
	}

	if reason := rc.StopReason(); reason != "" {
		return rc, fmt.Errorf("run stopped: %s", reason)
	}
	a.logger.Debug("App.Run method finished.")
	return rc, nil
}
