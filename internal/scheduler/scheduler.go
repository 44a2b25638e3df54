package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/specialistvlad/flowgrid/internal/config"
	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/expr"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/pool"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
	"github.com/specialistvlad/flowgrid/internal/strategy"
)

// ExceptionKey is the variable a failed task's error is stored under.
const ExceptionKey = "ex"

// DefaultPollInterval is how long the coordinator idles when no pending task
// has settled.
const DefaultPollInterval = time.Millisecond

// ErrNoRoot is returned when a graph without a root node is run.
var ErrNoRoot = errors.New("flow has no root node")

// Scheduler executes flows. One Scheduler serves any number of concurrent
// runs; they share the worker budget of its pool.
type Scheduler struct {
	pool         *pool.Pool
	registry     *registry.Registry
	evaluator    expr.Evaluator
	settings     config.Settings
	listeners    []Listener
	pollInterval time.Duration
	newID        func() string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithListeners adds lifecycle listeners notified around every run.
func WithListeners(l ...Listener) Option {
	return func(s *Scheduler) { s.listeners = append(s.listeners, l...) }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Scheduler) { s.newID = fn }
}

// WithEvaluator replaces the evaluator used for loop counts and guards. By
// default the registry's evaluator is used.
func WithEvaluator(ev expr.Evaluator) Option {
	return func(s *Scheduler) { s.evaluator = ev }
}

// New creates a scheduler that draws workers from p and handlers from reg.
func New(p *pool.Pool, reg *registry.Registry, settings config.Settings, opts ...Option) *Scheduler {
	s := &Scheduler{
		pool:         p,
		registry:     reg,
		evaluator:    reg.Evaluator(),
		settings:     settings,
		pollInterval: DefaultPollInterval,
		newID:        func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes g from its root with vars as the initial variables and blocks
// until the run has drained. The returned context holds the run's outputs
// and stop reason. Cancelling ctx stops the run.
//
// Errors are returned only for input that cannot be run at all; failures
// inside the run are logged and recorded in task variables.
func (s *Scheduler) Run(ctx context.Context, g *flow.Graph, vars map[string]any) (*runctx.Context, error) {
	if g == nil {
		return nil, errors.New("flow graph is nil")
	}
	root := g.Root()
	if root == nil {
		return nil, ErrNoRoot
	}

	id := s.newID()
	ctx = ctxlog.With(ctx, "run_id", id, "flow", g.Name)
	logger := ctxlog.FromContext(ctx)

	threads := root.Config.Int(flow.KeyThreads, s.settings.DefaultThreads)
	strat := strategy.New(root.Config.String(flow.KeySubmitStrategy, s.settings.Strategy))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub := s.pool.NewSubPool(runCtx, max(threads, 1)+1, strat)
	defer sub.Close()

	rc := runctx.New(id, root, sub)
	rc.Put(runctx.FlowNameKey, g.Name)
	if s.settings.DeadCycle > 0 {
		rc.InstallDeadCycleCounter()
	}

	logger.Info("Run starting.", "root", root.ID, "threads", threads, "strategy", strat.Name())
	s.notifyBeforeStart(ctx, rc)

	done, err := sub.Coordinate(func() {
		defer s.notifyAfterEnd(ctx, rc)
		s.coordinate(ctx, rc, vars)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start coordinator: %w", err)
	}
	// The coordinator observes ctx itself and always drains, so wait for it
	// unconditionally.
	if err := done.Wait(context.Background()); err != nil {
		logger.Error("Coordinator failed.", "error", err)
	}

	if counter := rc.DeadCycleCounter(); counter != nil && counter.Load() > int64(s.settings.DeadCycle) {
		logger.Error("Run aborted: possible dead cycle detected.", "executions", counter.Load(), "ceiling", s.settings.DeadCycle)
	}
	logger.Info("Run finished.", "outputs", len(rc.Outputs()), "stop_reason", rc.StopReason())
	return rc, nil
}
