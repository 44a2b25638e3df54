package testutil

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// RecorderShape is the shape handled by RecorderModule.
const RecorderShape = "record"

// RecorderModule is a shared, self-contained module for flow tests. It
// records every execution of a "record" node along with a copy of the task
// variables.
type RecorderModule struct {
	// Sleep is how long each execution takes.
	Sleep time.Duration
	// Async runs executions on the worker pool.
	Async bool

	mu      sync.Mutex
	records []ExecutionRecord
}

// Register implements the registry.Module interface.
func (m *RecorderModule) Register(r *registry.Registry) {
	r.Register(&recorderHandler{m: m})
}

// Records returns a copy of the executions seen so far.
func (m *RecorderModule) Records() []ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Count returns how many times node ran.
func (m *RecorderModule) Count(node string) int {
	n := 0
	for _, r := range m.Records() {
		if r.Node == node {
			n++
		}
	}
	return n
}

type recorderHandler struct {
	registry.Downstream
	m *RecorderModule
}

func (h *recorderHandler) Shape() string { return RecorderShape }
func (h *recorderHandler) Async() bool   { return h.m.Async }

func (h *recorderHandler) Execute(_ context.Context, node *flow.Node, _ *runctx.Context, vars map[string]any) error {
	start := time.Now()
	if h.m.Sleep > 0 {
		time.Sleep(h.m.Sleep)
	}
	rec := ExecutionRecord{Node: node.ID, Vars: maps.Clone(vars), Start: start, End: time.Now()}

	h.m.mu.Lock()
	h.m.records = append(h.m.records, rec)
	h.m.mu.Unlock()
	return nil
}
