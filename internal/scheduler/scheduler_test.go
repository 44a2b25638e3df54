package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/flowgrid/internal/config"
	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/pool"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
	"github.com/specialistvlad/flowgrid/modules/join"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the variables every handler invocation saw, per node.
type recorder struct {
	mu    sync.Mutex
	calls map[string][]map[string]any
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string][]map[string]any)}
}

func (r *recorder) record(nodeID string, vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[nodeID] = append(r.calls[nodeID], maps.Clone(vars))
}

func (r *recorder) count(nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls[nodeID])
}

func (r *recorder) get(nodeID string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[nodeID]
}

func (r *recorder) executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id := range r.calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// testHandler is a configurable handler that records its invocations.
type testHandler struct {
	shape string
	async bool
	rec   *recorder
	exec  func(ctx context.Context, node *flow.Node, rc *runctx.Context, vars map[string]any) error
	allow func(node *flow.Node, rc *runctx.Context, vars map[string]any) bool
}

func (h *testHandler) Shape() string { return h.shape }
func (h *testHandler) Async() bool   { return h.async }

func (h *testHandler) Execute(ctx context.Context, node *flow.Node, rc *runctx.Context, vars map[string]any) error {
	h.rec.record(node.ID, vars)
	if h.exec != nil {
		return h.exec(ctx, node, rc, vars)
	}
	return nil
}

func (h *testHandler) AllowDownstream(_ context.Context, node *flow.Node, rc *runctx.Context, vars map[string]any) bool {
	if h.allow != nil {
		return h.allow(node, rc, vars)
	}
	return true
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	var w io.Writer = io.Discard
	if os.Getenv("FLOWGRID_TEST_LOGS") == "true" {
		w = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctxlog.WithLogger(ctx, logger)
}

func testSettings() config.Settings {
	s := config.Default()
	s.DefaultThreads = 4
	return s
}

func newTestScheduler(settings config.Settings, handlers ...registry.Handler) *Scheduler {
	reg := registry.New(nil)
	for _, h := range handlers {
		reg.Register(h)
	}
	return New(pool.New(settings.TotalThreads), reg, settings)
}

// graphBuilder keeps graph construction in tests terse.
type graphBuilder struct {
	t *testing.T
	g *flow.Graph
}

func newGraph(t *testing.T) *graphBuilder {
	return &graphBuilder{t: t, g: flow.NewGraph(t.Name())}
}

// node adds a node with the given shape and key/value pairs.
func (b *graphBuilder) node(id, shape string, kv ...string) *graphBuilder {
	b.t.Helper()
	n := flow.NewNode(id)
	if shape != "" {
		n.Config.Set(flow.KeyShape, shape)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Config.Set(kv[i], kv[i+1])
	}
	require.NoError(b.t, b.g.AddNode(n))
	return b
}

func (b *graphBuilder) edge(from, to string, configure ...func(*flow.Edge)) *graphBuilder {
	b.t.Helper()
	e, err := b.g.AddEdge(from, to)
	require.NoError(b.t, err)
	for _, fn := range configure {
		fn(e)
	}
	return b
}

func (b *graphBuilder) build(root string) *flow.Graph {
	b.t.Helper()
	require.NoError(b.t, b.g.SetRoot(root))
	require.NoError(b.t, b.g.Seal())
	return b.g
}

func condition(c string) func(*flow.Edge) {
	return func(e *flow.Edge) { e.Condition = c }
}

func routing(r flow.ExceptionRouting) func(*flow.Edge) {
	return func(e *flow.Edge) { e.Exception = r }
}

func noTransmit(e *flow.Edge) { e.Transmit = false }

func TestRun_InvalidInput(t *testing.T) {
	ctx := testContext(t)
	s := newTestScheduler(testSettings())

	_, err := s.Run(ctx, nil, nil)
	assert.Error(t, err)

	g := flow.NewGraph("rootless")
	require.NoError(t, g.AddNode(flow.NewNode("a")))
	_, err = s.Run(ctx, g, nil)
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestRun_ExecutesNodesReachableThroughTrueGuards(t *testing.T) {
	// Arrange
	rec := newRecorder()
	s := newTestScheduler(testSettings(),
		&testHandler{shape: "sync", rec: rec},
		&testHandler{shape: "async", async: true, rec: rec},
	)
	g := newGraph(t).
		node("root", "sync").
		node("a", "async").
		node("b", "sync").
		node("c", "async").
		node("d", "sync").
		node("e", "async").
		node("unreachable", "sync").
		edge("root", "a", condition("enabled == true")).
		edge("root", "b", condition("enabled == false")).
		edge("a", "c").
		edge("b", "d").
		edge("c", "e", condition(`"true"`)).
		edge("unreachable", "a").
		build("root")

	// Act
	rc, err := s.Run(testContext(t), g, map[string]any{"enabled": true})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "e", "root"}, rec.executed())
	for _, id := range rec.executed() {
		assert.Equal(t, 1, rec.count(id), "node %s", id)
		n, _ := g.Node(id)
		assert.Zero(t, rc.Instances().Pending(n), "node %s", id)
	}
	assert.Empty(t, rc.StopReason())
}

func TestRun_GuardFalseLiteralSkipsNode(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(testSettings(), &testHandler{shape: "work", async: true, rec: rec})
	g := newGraph(t).
		node("root", "").
		node("a", "work").
		edge("root", "a", condition(`"false"`)).
		build("root")

	rc, err := s.Run(testContext(t), g, nil)

	require.NoError(t, err)
	assert.Zero(t, rec.count("a"))
	assert.Empty(t, rc.Outputs())
}

func TestRun_GuardEvaluationFailureClosesEdge(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(testSettings(), &testHandler{shape: "work", rec: rec})
	g := newGraph(t).
		node("root", "work").
		node("a", "work").
		edge("root", "a", condition("undefined_var > 1")).
		build("root")

	_, err := s.Run(testContext(t), g, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, rec.executed())
}

func TestRun_PassThroughNodes(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(testSettings(), &testHandler{shape: "work", async: true, rec: rec})
	g := newGraph(t).
		node("root", "").
		node("hop1", "").
		node("hop2", "").
		node("a", "work").
		edge("root", "hop1").
		edge("hop1", "hop2").
		edge("hop2", "hop1").
		edge("hop2", "a").
		build("root")

	_, err := s.Run(testContext(t), g, map[string]any{"seed": 1})

	require.NoError(t, err)
	require.Equal(t, 1, rec.count("a"))
	assert.Equal(t, 1, rec.get("a")[0]["seed"])
}

func TestRun_VariableTransmission(t *testing.T) {
	rec := newRecorder()
	setter := &testHandler{shape: "set", rec: rec, exec: func(_ context.Context, _ *flow.Node, _ *runctx.Context, vars map[string]any) error {
		vars["produced"] = "value"
		return nil
	}}
	s := newTestScheduler(testSettings(), setter, &testHandler{shape: "work", async: true, rec: rec})
	g := newGraph(t).
		node("root", "set").
		node("keeps", "work").
		node("drops", "work").
		edge("root", "keeps").
		edge("root", "drops", noTransmit).
		build("root")

	_, err := s.Run(testContext(t), g, map[string]any{"seed": 1})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"seed": 1, "produced": "value"}, rec.get("keeps")[0])
	assert.Empty(t, rec.get("drops")[0])
}

func TestRun_LoopSpawnsOneTaskPerIteration(t *testing.T) {
	// Arrange
	rec := newRecorder()
	var peak atomic.Int64
	work := &testHandler{shape: "work", async: true, rec: rec, exec: func(_ context.Context, node *flow.Node, rc *runctx.Context, _ map[string]any) error {
		if p := rc.Instances().Pending(node); p > peak.Load() {
			peak.Store(p)
		}
		time.Sleep(time.Millisecond)
		return nil
	}}
	s := newTestScheduler(testSettings(), &testHandler{shape: "start", rec: rec}, work)
	g := newGraph(t).
		node("root", "start").
		node("a", "work", flow.KeyLoopCount, "n", flow.KeyLoopVariable, "idx").
		edge("root", "a").
		build("root")

	// Act
	rc, err := s.Run(testContext(t), g, map[string]any{"n": 5})

	// Assert
	require.NoError(t, err)
	calls := rec.get("a")
	require.Len(t, calls, 5)
	var items, indexes []int
	for _, vars := range calls {
		items = append(items, vars["item"].(int))
		indexes = append(indexes, vars["idx"].(int))
		assert.Equal(t, 5, vars["n"], "loop iterations inherit the caller's variables")
	}
	sort.Ints(items)
	sort.Ints(indexes)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, items)
	assert.Equal(t, items, indexes)

	a, _ := g.Node("a")
	assert.Zero(t, rc.Instances().Pending(a), "counter returns to zero once every instance settled")
	assert.Positive(t, peak.Load())
}

func TestRun_LoopBounds(t *testing.T) {
	testCases := []struct {
		name      string
		count     string
		kv        []string
		wantItems []any
	}{
		{name: "default range", count: "4", wantItems: []any{0, 1, 2, 3}},
		{name: "end -1 is the full range", count: "4", kv: []string{flow.KeyLoopEnd, "-1"}, wantItems: []any{0, 1, 2, 3}},
		{name: "end -2 drops the last", count: "4", kv: []string{flow.KeyLoopEnd, "-2"}, wantItems: []any{0, 1, 2}},
		{name: "end far negative clamps to zero", count: "4", kv: []string{flow.KeyLoopEnd, "-10"}},
		{name: "end clamps to count", count: "4", kv: []string{flow.KeyLoopEnd, "10"}, wantItems: []any{0, 1, 2, 3}},
		{name: "explicit end", count: "4", kv: []string{flow.KeyLoopEnd, "2"}, wantItems: []any{0, 1}},
		{name: "start", count: "4", kv: []string{flow.KeyLoopStart, "1", flow.KeyLoopEnd, "-1"}, wantItems: []any{1, 2, 3}},
		{name: "negative start is zero", count: "2", kv: []string{flow.KeyLoopStart, "-3"}, wantItems: []any{0, 1}},
		{name: "list items", count: `["x", "y", "z"]`, wantItems: []any{"x", "y", "z"}},
		{name: "list with end -2", count: `["x", "y", "z"]`, kv: []string{flow.KeyLoopEnd, "-2"}, wantItems: []any{"x", "y"}},
		{name: "map values in key order", count: `{ b = "second", a = "first" }`, wantItems: []any{"first", "second"}},
		{name: "numeric string", count: `"3"`, wantItems: []any{0, 1, 2}},
		{name: "custom item variable", count: "1", kv: []string{flow.KeyLoopItem, "row"}},
		{name: "zero", count: "0"},
		{name: "null", count: "null"},
		{name: "evaluation failure", count: "missing.field"},
		{name: "non-numeric string", count: `"many"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecorder()
			s := newTestScheduler(testSettings(), &testHandler{shape: "work", async: true, rec: rec})
			kv := append([]string{flow.KeyLoopCount, tc.count}, tc.kv...)
			g := newGraph(t).node("a", "work", kv...).build("a")

			rc, err := s.Run(testContext(t), g, nil)
			require.NoError(t, err)

			var items []any
			for _, vars := range rec.get("a") {
				items = append(items, vars["item"])
			}
			if tc.name == "custom item variable" {
				require.Len(t, rec.get("a"), 1)
				assert.Equal(t, 0, rec.get("a")[0]["row"])
				assert.NotContains(t, rec.get("a")[0], "item")
				return
			}
			assert.ElementsMatch(t, tc.wantItems, items)
			a, _ := g.Node("a")
			assert.Zero(t, rc.Instances().Pending(a))
		})
	}
}

func TestRun_ExceptionRouting(t *testing.T) {
	// Arrange
	rec := newRecorder()
	boom := errors.New("boom")
	failing := &testHandler{shape: "fail", async: true, rec: rec, exec: func(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
		return boom
	}}
	s := newTestScheduler(testSettings(), failing, &testHandler{shape: "work", async: true, rec: rec})
	g := newGraph(t).
		node("x", "fail").
		node("on_error", "work").
		node("on_success", "work").
		node("always", "work").
		node("after_recovery", "work").
		edge("x", "on_error", routing(flow.ExceptionOnly)).
		edge("x", "on_success", routing(flow.SuccessOnly)).
		edge("x", "always").
		edge("on_error", "after_recovery", routing(flow.SuccessOnly)).
		build("x")

	// Act
	rc, err := s.Run(testContext(t), g, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count("on_error"))
	assert.Zero(t, rec.count("on_success"))
	assert.Equal(t, 1, rec.count("always"))
	assert.ErrorIs(t, rec.get("on_error")[0][ExceptionKey].(error), boom)
	assert.Equal(t, 1, rec.count("after_recovery"), "a successful task clears the inherited exception")
	assert.NotContains(t, rec.get("after_recovery")[0], ExceptionKey)
	assert.Empty(t, rc.StopReason(), "handler failures do not stop the run")
}

func TestRun_HandlerPanicIsRecordedAsException(t *testing.T) {
	rec := newRecorder()
	panicking := &testHandler{shape: "panic", rec: rec, exec: func(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
		panic("kaboom")
	}}
	s := newTestScheduler(testSettings(), panicking, &testHandler{shape: "work", rec: rec})
	g := newGraph(t).
		node("x", "panic").
		node("handler", "work").
		edge("x", "handler", routing(flow.ExceptionOnly)).
		build("x")

	_, err := s.Run(testContext(t), g, nil)

	require.NoError(t, err)
	require.Equal(t, 1, rec.count("handler"))
	assert.ErrorContains(t, rec.get("handler")[0][ExceptionKey].(error), "kaboom")
}

func TestRun_MissingHandlerStopsRun(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(testSettings(), &testHandler{shape: "work", async: true, rec: rec})
	g := newGraph(t).
		node("root", "work").
		node("ghost", "nope").
		node("after", "work").
		edge("root", "ghost").
		edge("ghost", "after").
		build("root")

	rc, err := s.Run(testContext(t), g, nil)

	require.NoError(t, err)
	assert.False(t, rc.IsRunning())
	assert.Contains(t, rc.StopReason(), `"nope"`)
	assert.Equal(t, []string{"root"}, rec.executed())
}

func TestRun_DeadCycleStopsRun(t *testing.T) {
	// Arrange
	rec := newRecorder()
	settings := testSettings()
	settings.DeadCycle = 10
	s := newTestScheduler(settings, &testHandler{shape: "work", async: true, rec: rec})
	g := newGraph(t).
		node("spin", "work").
		edge("spin", "spin").
		build("spin")

	// Act
	rc, err := s.Run(testContext(t), g, nil)

	// Assert
	require.NoError(t, err)
	assert.False(t, rc.IsRunning())
	assert.Contains(t, rc.StopReason(), "dead cycle")
	assert.Equal(t, 10, rec.count("spin"), "the handler runs exactly up to the ceiling")
	assert.Equal(t, int64(11), rc.DeadCycleCounter().Load())
	spin, _ := g.Node("spin")
	assert.Zero(t, rc.Instances().Pending(spin))
}

func TestRun_DeadCycleDisabled(t *testing.T) {
	rec := newRecorder()
	settings := testSettings()
	settings.DeadCycle = 0
	stopAfter := 50
	s := newTestScheduler(settings, &testHandler{
		shape: "work", rec: rec,
		allow: func(node *flow.Node, _ *runctx.Context, _ map[string]any) bool {
			return rec.count(node.ID) < stopAfter
		},
	})
	g := newGraph(t).node("spin", "work").edge("spin", "spin").build("spin")

	rc, err := s.Run(testContext(t), g, nil)

	require.NoError(t, err)
	assert.Nil(t, rc.DeadCycleCounter())
	assert.Equal(t, stopAfter, rec.count("spin"))
}

func TestRun_LoopIntoJoin(t *testing.T) {
	// Arrange: root -> A (3 iterations) -> B (join) -> C.
	rec := newRecorder()
	var fired atomic.Int32
	var aPendingWhenFired atomic.Int64
	aPendingWhenFired.Store(-1)

	work := &testHandler{shape: "work", async: true, rec: rec, exec: func(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}}
	join := &testHandler{shape: "join", rec: rec, allow: func(node *flow.Node, rc *runctx.Context, _ map[string]any) bool {
		in := rc.Instances()
		if in.Pending(node) != 0 || !in.PredecessorsSettled(node) {
			return false
		}
		fired.Add(1)
		a := node.Incoming()[0].From
		aPendingWhenFired.Store(in.Pending(a))
		return true
	}}
	s := newTestScheduler(testSettings(), &testHandler{shape: "start", rec: rec}, work, join)
	g := newGraph(t).
		node("root", "start").
		node("A", "work", flow.KeyLoopCount, "3").
		node("B", "join").
		node("C", "work").
		edge("root", "A").
		edge("A", "B").
		edge("B", "C").
		build("root")

	// Act
	_, err := s.Run(testContext(t), g, nil)

	// Assert
	require.NoError(t, err)
	var items []any
	for _, vars := range rec.get("A") {
		items = append(items, vars["item"])
	}
	assert.ElementsMatch(t, []any{0, 1, 2}, items)
	assert.Equal(t, int32(1), fired.Load(), "the join lets traversal pass exactly once")
	assert.Zero(t, aPendingWhenFired.Load(), "all A instances settled before the join fired")
	assert.Equal(t, 1, rec.count("C"))
}

func TestRun_LoopVetoesUntilAllIterationsFinish(t *testing.T) {
	rec := newRecorder()
	loop := &testHandler{shape: "work", async: true, rec: rec, allow: func(node *flow.Node, rc *runctx.Context, _ map[string]any) bool {
		return rc.Instances().Pending(node) == 0
	}}
	s := newTestScheduler(testSettings(), loop, &testHandler{shape: "after", rec: rec})
	g := newGraph(t).
		node("A", "work", flow.KeyLoopCount, "3").
		node("B", "after").
		edge("A", "B").
		build("A")

	_, err := s.Run(testContext(t), g, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, rec.count("A"))
	assert.Equal(t, 1, rec.count("B"))
}

func TestRun_AlwaysFailingHandlerCompletes(t *testing.T) {
	rec := newRecorder()
	failing := &testHandler{shape: "fail", async: true, rec: rec, exec: func(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
		return errors.New("always")
	}}
	s := newTestScheduler(testSettings(), failing, &testHandler{shape: "work", async: true, rec: rec})
	g := newGraph(t).
		node("X", "fail", flow.KeyLoopCount, "4").
		node("err", "work").
		node("ok", "work").
		edge("X", "err", routing(flow.ExceptionOnly)).
		edge("X", "ok", routing(flow.SuccessOnly)).
		build("X")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Run(testContext(t), g, nil)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}
	assert.Equal(t, 4, rec.count("err"))
	assert.Zero(t, rec.count("ok"))
}

func TestRun_RespectsThreadCount(t *testing.T) {
	var current, peak atomic.Int64
	rec := newRecorder()
	work := &testHandler{shape: "work", async: true, rec: rec, exec: func(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return nil
	}}
	s := newTestScheduler(testSettings(), work)
	g := newGraph(t).
		node("a", "work", flow.KeyLoopCount, "20", flow.KeyThreads, "2", flow.KeySubmitStrategy, "linked").
		build("a")

	rc, err := s.Run(testContext(t), g, nil)

	require.NoError(t, err)
	assert.Equal(t, 20, rec.count("a"))
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Equal(t, "linked", rc.Pool().Strategy().Name())
	assert.Equal(t, 2, rc.Pool().Workers())
}

func TestRun_CancelledContextStopsRun(t *testing.T) {
	rec := newRecorder()
	settings := testSettings()
	settings.DeadCycle = 0
	ctx, cancel := context.WithCancel(testContext(t))
	var calls atomic.Int32
	work := &testHandler{shape: "work", async: true, rec: rec, exec: func(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
		if calls.Add(1) == 5 {
			cancel()
		}
		return nil
	}}
	s := newTestScheduler(settings, work)
	g := newGraph(t).node("spin", "work").edge("spin", "spin").build("spin")

	rc, err := s.Run(ctx, g, nil)

	require.NoError(t, err)
	assert.Contains(t, rc.StopReason(), "cancelled")
}

type countingListener struct {
	before, after atomic.Int32
	err           error
	panics        bool
}

func (l *countingListener) BeforeStart(context.Context, *runctx.Context) error {
	l.before.Add(1)
	if l.panics {
		panic("listener")
	}
	return l.err
}

func (l *countingListener) AfterEnd(_ context.Context, rc *runctx.Context) error {
	l.after.Add(1)
	if rc.Pending().Len() != 0 {
		return errors.New("queue not drained")
	}
	return l.err
}

func TestRun_ListenersNeverAbortTheRun(t *testing.T) {
	rec := newRecorder()
	failing := &countingListener{err: errors.New("listener failed")}
	panicking := &countingListener{panics: true}
	ok := &countingListener{}

	reg := registry.New(nil)
	reg.Register(&testHandler{shape: "work", async: true, rec: rec})
	settings := testSettings()
	var ids atomic.Int32
	s := New(pool.New(4), reg, settings,
		WithListeners(failing, panicking, ok),
		WithPollInterval(500*time.Microsecond),
		WithIDGenerator(func() string { ids.Add(1); return "fixed-id" }),
	)
	g := newGraph(t).node("a", "work", flow.KeyLoopCount, "3").build("a")

	rc, err := s.Run(testContext(t), g, nil)

	require.NoError(t, err)
	assert.Equal(t, "fixed-id", rc.ID())
	assert.Equal(t, t.Name(), rc.FlowName())
	assert.Equal(t, 3, rec.count("a"))
	for _, l := range []*countingListener{failing, panicking, ok} {
		assert.Equal(t, int32(1), l.before.Load())
		assert.Equal(t, int32(1), l.after.Load())
	}
}

func TestRun_ConcurrentRunsShareThePool(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(testSettings(), &testHandler{shape: "work", async: true, rec: rec})

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := newGraph(t).node("a", "work", flow.KeyLoopCount, "10").build("a")
			rc, err := s.Run(testContext(t), g, nil)
			assert.NoError(t, err)
			ids[i] = rc.ID()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, rec.count("a"))
	seen := map[string]bool{}
	for _, id := range ids {
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "run ids are unique")
		seen[id] = true
	}
}

func TestRun_ConcurrentRunsOfOneGraphKeepTheirOwnCounters(t *testing.T) {
	// Arrange: root -> A (3 iterations) -> B (join) -> C, one graph shared by
	// every run.
	rec := newRecorder()
	work := &testHandler{shape: "work", async: true, rec: rec, exec: func(context.Context, *flow.Node, *runctx.Context, map[string]any) error {
		time.Sleep(time.Millisecond)
		return nil
	}}
	reg := registry.New(nil)
	reg.Register(&testHandler{shape: "start", rec: rec})
	reg.Register(work)
	reg.Use(&join.Module{})
	s := New(pool.New(16), reg, testSettings())
	g := newGraph(t).
		node("root", "start").
		node("A", "work", flow.KeyLoopCount, "3").
		node("B", join.Shape).
		node("C", "work").
		edge("root", "A").
		edge("A", "B").
		edge("B", "C").
		build("root")

	// Act
	const rounds, runs = 5, 2
	for r := 0; r < rounds; r++ {
		var wg sync.WaitGroup
		for i := 0; i < runs; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rc, err := s.Run(testContext(t), g, nil)
				assert.NoError(t, err)
				for _, n := range g.Nodes() {
					assert.Zero(t, rc.Instances().Pending(n), "node %s", n.ID)
				}
			}()
		}
		wg.Wait()
	}

	// Assert
	assert.Equal(t, rounds*runs*3, rec.count("A"))
	assert.Equal(t, rounds*runs, rec.count("C"), "every run releases its join exactly once")
}
