package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/listener"
	"github.com/specialistvlad/flowgrid/internal/pool"
	"github.com/specialistvlad/flowgrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	ctx      context.Context
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	pool     *pool.Pool
	graph    *flow.Graph
	history  *listener.History
	closers  []io.Closer

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry,
// with the flow already loaded. When no modules are given the core modules
// are registered.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:     outW,
		ctx:      ctx,
		logger:   logger,
		config:   cfg,
		registry: registry.New(nil),
		pool:     pool.New(cfg.Settings.TotalThreads),
	}

	if len(modules) == 0 {
		modules = coreModules(outW)
	}
	a.registry.Use(modules...)
	for _, m := range modules {
		if c, ok := m.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "shapes", a.registry.Shapes())

	if err := a.loadFlow(); err != nil {
		a.closeOnError()
		return nil, err
	}
	if err := a.openHistory(); err != nil {
		a.closeOnError()
		return nil, err
	}
	return a, nil
}

// closeOnError releases whatever NewApp acquired before it failed.
func (a *App) closeOnError() {
	if err := a.Close(); err != nil {
		a.logger.Warn("Failed to release resources after startup error.", "error", err)
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Graph returns the loaded flow.
func (a *App) Graph() *flow.Graph {
	return a.graph
}

// History returns the run history, or nil when it is disabled.
func (a *App) History() *listener.History {
	return a.history
}

// Close releases the resources held by the app and its modules.
func (a *App) Close() error {
	var firstErr error
	if err := a.closeHealthCheckServer(); err != nil {
		firstErr = err
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
