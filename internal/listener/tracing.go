package listener

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/flowgrid/internal/runctx"
)

const (
	traceScope = "flowgrid"
	spanKey    = "__trace_span"
)

// TraceOption configures Tracing.
type TraceOption func(*Tracing)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TraceOption {
	return func(t *Tracing) {
		t.tracer = tp.Tracer(traceScope)
	}
}

// Tracing opens a span per run and closes it once the run drains.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing returns a listener using the global TracerProvider unless an
// option overrides it.
func NewTracing(opts ...TraceOption) *Tracing {
	t := &Tracing{tracer: otel.GetTracerProvider().Tracer(traceScope)}
	for _, o := range opts {
		o(t)
	}
	return t
}

// BeforeStart starts the run span and parks it in the run context.
func (t *Tracing) BeforeStart(ctx context.Context, rc *runctx.Context) error {
	_, span := t.tracer.Start(ctx, "run "+rc.FlowName(),
		trace.WithTimestamp(rc.StartedAt()),
		trace.WithAttributes(
			attribute.String("flowgrid.run.id", rc.ID()),
			attribute.String("flowgrid.flow.name", rc.FlowName()),
		),
	)
	rc.Put(spanKey, span)
	return nil
}

// AfterEnd finishes the span started by BeforeStart.
func (t *Tracing) AfterEnd(_ context.Context, rc *runctx.Context) error {
	raw, ok := rc.Get(spanKey)
	if !ok {
		return nil
	}
	span, ok := raw.(trace.Span)
	if !ok {
		return nil
	}
	defer span.End()

	span.SetAttributes(attribute.Int("flowgrid.run.outputs", len(rc.Outputs())))
	if counter := rc.DeadCycleCounter(); counter != nil {
		span.SetAttributes(attribute.Int64("flowgrid.run.executions", counter.Load()))
	}
	if reason := rc.StopReason(); reason != "" {
		span.SetStatus(codes.Error, reason)
	} else {
		span.SetStatus(codes.Ok, codes.Ok.String())
	}
	return nil
}
