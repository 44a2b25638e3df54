package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/flowgrid/internal/app"
	"github.com/specialistvlad/flowgrid/internal/config"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
	"github.com/stretchr/testify/require"
)

// HarnessResult holds the outcomes of a flow test run.
type HarnessResult struct {
	// Output is everything the app wrote, logs included.
	Output string
	Err    error
	App    *app.App
	Run    *runctx.Context
}

// FlowTest configures RunFlowTest.
type FlowTest struct {
	// Files maps relative paths to HCL content.
	Files    map[string]string
	Modules  []registry.Module
	Settings *config.Settings
	Vars     map[string]any
}

// RunFlowTest writes the flow files into a temporary directory, builds an
// app around them and runs the flow once.
func RunFlowTest(t *testing.T, ft FlowTest) *HarnessResult {
	t.Helper()
	return RunFlowTestWithContext(context.Background(), t, ft)
}

// RunFlowTestWithContext is RunFlowTest with a caller supplied context.
func RunFlowTestWithContext(ctx context.Context, t *testing.T, ft FlowTest) *HarnessResult {
	t.Helper()

	dir := t.TempDir()
	for name, content := range ft.Files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	settings := config.Default()
	if ft.Settings != nil {
		settings = *ft.Settings
	}
	cfg := &app.Config{
		FlowPaths: []string{dir},
		Settings:  settings,
		LogLevel:  "debug",
		LogFormat: "text",
		Vars:      ft.Vars,
	}

	buf := &SafeBuffer{}
	dumpLogsOnCleanup(t, buf)

	a, err := app.NewApp(ctx, buf, cfg, ft.Modules...)
	if err != nil {
		return &HarnessResult{Output: buf.String(), Err: err}
	}
	t.Cleanup(func() { _ = a.Close() })

	rc, err := a.Run(ctx)
	return &HarnessResult{Output: buf.String(), Err: err, App: a, Run: rc}
}
