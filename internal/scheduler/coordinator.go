package scheduler

import (
	"context"
	"time"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/pool"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// coordinate dispatches the root and then processes completions until the
// pending queue is empty.
func (s *Scheduler) coordinate(ctx context.Context, rc *runctx.Context, vars map[string]any) {
	logger := ctxlog.FromContext(ctx)
	s.executeNode(ctx, rc, nil, rc.Root(), vars)

	queue := rc.Pending()
	strat := rc.Pool().Strategy()
	for !queue.Empty() {
		if ctx.Err() != nil && rc.IsRunning() {
			logger.Warn("Run cancelled.", "error", ctx.Err())
			rc.Stop("cancelled: " + ctx.Err().Error())
		}
		f, ok := queue.TakeDone(strat)
		if !ok {
			time.Sleep(s.pollInterval)
			continue
		}
		s.advance(ctx, rc, f)
	}

	if err := rc.Pool().AwaitTermination(context.Background()); err != nil {
		logger.Warn("Awaiting pool termination failed.", "error", err)
	}
}

// advance handles one settled future.
func (s *Scheduler) advance(ctx context.Context, rc *runctx.Context, f *pool.Future) {
	logger := ctxlog.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered panic while advancing run.", "panic", r)
		}
	}()

	node := f.Node()
	rc.Instances().Decrement(node)

	if err := f.Err(); err != nil {
		logger.Error("Task did not run.", "node", node.ID, "error", err)
		return
	}
	if !rc.IsRunning() {
		return
	}

	t := f.Value().(*task)
	if !t.handler.AllowDownstream(ctx, node, rc, t.vars) {
		logger.Debug("Node finished, downstream held back.", "node", node.ID)
		return
	}
	logger.Debug("Node finished.", "node", node.ID)
	for _, e := range node.Edges() {
		s.executeNode(ctx, rc, e, e.To, t.vars)
	}
}
