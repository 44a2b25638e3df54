package app

import (
	"fmt"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/expr"
	"github.com/specialistvlad/flowgrid/internal/flowhcl"
	"github.com/specialistvlad/flowgrid/internal/listener"
)

func (a *App) loadFlow() error {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Loading flow...", "paths", a.config.FlowPaths)

	var fns flowhcl.FunctionTable
	if h, ok := a.registry.Evaluator().(*expr.HCL); ok {
		fns = h
	}
	g, err := flowhcl.NewLoader(fns).Load(a.ctx, a.config.FlowPaths...)
	if err != nil {
		return fmt.Errorf("failed to load flow: %w", err)
	}

	if missing := a.registry.MissingShapes(g); len(missing) > 0 {
		logger.Warn("Nodes use shapes with no registered handler; reaching them stops the run.", "nodes", missing)
	}

	a.graph = g
	logger.Info("Flow loaded successfully.", "flow", g.Name, "nodes", len(g.Nodes()), "root", g.Root().ID)
	return nil
}

func (a *App) openHistory() error {
	if a.config.HistoryDB == "" {
		return nil
	}
	h, err := listener.OpenHistory(a.config.HistoryDB)
	if err != nil {
		return err
	}
	a.history = h
	ctxlog.FromContext(a.ctx).Debug("Run history enabled.", "db", a.config.HistoryDB)
	return nil
}
