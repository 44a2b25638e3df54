package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
)

// LogsEnv enables dumping captured logs for every test when set to "true".
const LogsEnv = "FLOWGRID_TEST_LOGS"

// Context returns a context carrying a debug logger that writes into the
// returned buffer.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dumpLogsOnCleanup(t, buf)
	return ctxlog.WithLogger(context.Background(), logger), buf
}

// Node builds a node from alternating key and value strings.
func Node(id string, kv ...string) *flow.Node {
	n := flow.NewNode(id)
	for i := 0; i+1 < len(kv); i += 2 {
		n.Config.Set(kv[i], kv[i+1])
	}
	return n
}

func dumpLogsOnCleanup(t *testing.T, buf *SafeBuffer) {
	t.Cleanup(func() {
		if os.Getenv(LogsEnv) == "true" || t.Failed() {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
}
