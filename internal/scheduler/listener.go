package scheduler

import (
	"context"
	"fmt"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Listener is notified when a run starts and after it has drained. Errors
// are logged and never affect the run.
type Listener interface {
	BeforeStart(ctx context.Context, rc *runctx.Context) error
	AfterEnd(ctx context.Context, rc *runctx.Context) error
}

func (s *Scheduler) notifyBeforeStart(ctx context.Context, rc *runctx.Context) {
	for _, l := range s.listeners {
		notify(ctx, "before_start", func() error { return l.BeforeStart(ctx, rc) })
	}
}

func (s *Scheduler) notifyAfterEnd(ctx context.Context, rc *runctx.Context) {
	for _, l := range s.listeners {
		notify(ctx, "after_end", func() error { return l.AfterEnd(ctx, rc) })
	}
}

func notify(ctx context.Context, event string, fn func() error) {
	logger := ctxlog.FromContext(ctx)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("listener panicked: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		logger.Error("Lifecycle listener failed.", "event", event, "error", err)
	}
}
