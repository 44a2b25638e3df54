package scheduler

import (
	"context"
	"fmt"
	"maps"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// task is one instance of a node. It is the value of the future the
// coordinator receives once the instance has run.
type task struct {
	node    *flow.Node
	handler registry.Handler
	vars    map[string]any
}

// executeNode dispatches node after it was reached through via. via is nil
// for the root dispatch.
func (s *Scheduler) executeNode(ctx context.Context, rc *runctx.Context, via *flow.Edge, node *flow.Node, vars map[string]any) {
	logger := ctxlog.FromContext(ctx)

	shape := node.Shape()
	if shape == "" {
		s.passThrough(ctx, rc, node, vars, map[*flow.Node]bool{})
		return
	}

	if !s.edgeAllows(ctx, via, vars) {
		logger.Debug("Edge closed, node skipped.", "node", node.ID)
		return
	}

	handler, ok := s.registry.Lookup(shape)
	if !ok {
		logger.Error("No handler registered for shape, stopping run.", "node", node.ID, "shape", shape)
		rc.Stop(fmt.Sprintf("no handler registered for shape %q", shape))
		return
	}

	plan := s.resolveLoop(ctx, node, vars)
	logger.Debug("Dispatching node.", "node", node.ID, "shape", shape, "from", plan.start, "to", plan.end)

	inherit := via == nil || via.Transmit
	for i := plan.start; i < plan.end && rc.IsRunning(); i++ {
		rc.Instances().Increment(node)

		taskVars := make(map[string]any, len(vars)+2)
		if inherit {
			maps.Copy(taskVars, vars)
		}
		if plan.loop {
			if plan.indexVar != "" {
				taskVars[plan.indexVar] = i
			}
			taskVars[plan.itemVar] = plan.item(i)
		}

		t := &task{node: node, handler: handler, vars: taskVars}
		if handler.Async() {
			f, err := rc.Pool().SubmitAsync(node, func() (any, error) {
				s.runTask(ctx, rc, t)
				return t, nil
			})
			if err != nil {
				rc.Instances().Decrement(node)
				logger.Error("Failed to submit task.", "node", node.ID, "error", err)
				continue
			}
			rc.Pending().Push(f)
			continue
		}
		s.runTask(ctx, rc, t)
		rc.Pending().Push(rc.Pool().Completed(node, t))
	}
}

// passThrough dispatches the successors of a node without a shape. The seen
// set stops cycles made only of shapeless nodes.
func (s *Scheduler) passThrough(ctx context.Context, rc *runctx.Context, node *flow.Node, vars map[string]any, seen map[*flow.Node]bool) {
	seen[node] = true
	for _, e := range node.Edges() {
		if e.To.Shape() != "" {
			s.executeNode(ctx, rc, e, e.To, vars)
			continue
		}
		if !seen[e.To] {
			s.passThrough(ctx, rc, e.To, vars, seen)
		}
	}
}

// runTask invokes the handler of t. Failures are recorded in t.vars.
func (s *Scheduler) runTask(ctx context.Context, rc *runctx.Context, t *task) {
	if !rc.IsRunning() {
		return
	}
	logger := ctxlog.FromContext(ctx)

	if counter := rc.DeadCycleCounter(); counter != nil && counter.Add(1) > int64(s.settings.DeadCycle) {
		rc.Stop(fmt.Sprintf("dead cycle ceiling of %d executions exceeded", s.settings.DeadCycle))
		return
	}

	if err := s.invoke(ctx, rc, t); err != nil {
		t.vars[ExceptionKey] = err
		logger.Error("Node execution failed.", "node", t.node.ID, "name", t.node.Name, "error", err)
		return
	}
	delete(t.vars, ExceptionKey)
}

func (s *Scheduler) invoke(ctx context.Context, rc *runctx.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for shape %q panicked: %v", t.handler.Shape(), r)
		}
	}()
	return t.handler.Execute(ctx, t.node, rc, t.vars)
}
