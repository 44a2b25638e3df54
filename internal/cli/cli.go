package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/flowgrid/internal/app"
	"github.com/specialistvlad/flowgrid/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// options holds the raw flag values.
type options struct {
	configPath      string
	threads         int
	maxThreads      int
	deadCycle       int
	strategy        string
	logLevel        string
	logFormat       string
	healthcheckPort int
	historyDB       string
	vars            []string
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var cfg *app.Config
	cmd := newRootCommand(func(c *app.Config) { cfg = c })
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, usageError("%s", err.Error())
	}
	if cfg == nil {
		// Help was requested or no flow path was given.
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "flow_paths", cfg.FlowPaths)
	return cfg, false, nil
}

func newRootCommand(accept func(*app.Config)) *cobra.Command {
	opts := &options{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "flowgrid [flags] FLOW_PATH...",
		Short: "FlowGrid - a concurrent node-graph flow runner.",
		Long: `FlowGrid - a concurrent node-graph flow runner.

Runs the flow defined by the .hcl files found at FLOW_PATH (a file or a
directory, searched recursively) and prints each output as a JSON line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				slog.Debug("No flow path provided, printing usage and exiting.")
				return cmd.Usage()
			}
			cfg, err := buildConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			accept(cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML settings file.")
	f.IntVar(&opts.threads, "threads", defaults.DefaultThreads, "Threads per run when the root node does not set any.")
	f.IntVar(&opts.maxThreads, "max-threads", defaults.TotalThreads, "Tasks allowed to run at once across all runs.")
	f.IntVar(&opts.deadCycle, "dead-cycle", defaults.DeadCycle, "Task executions allowed per run before it is stopped. 0 disables the check.")
	f.StringVar(&opts.strategy, "strategy", defaults.Strategy, "Default submit strategy: random, linked, child or parent.")
	f.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	f.StringVar(&opts.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	f.IntVar(&opts.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	f.StringVar(&opts.historyDB, "history-db", "", "SQLite database to record runs in. Empty disables the history.")
	f.StringArrayVar(&opts.vars, "var", nil, "Initial variable as key=value. The value is parsed as YAML. Repeatable.")
	return cmd
}

func buildConfig(cmd *cobra.Command, opts *options, args []string) (*app.Config, error) {
	settings, err := config.Load(opts.configPath)
	if err != nil {
		return nil, usageError("%s", err.Error())
	}
	// Flags given explicitly win over the settings file.
	f := cmd.Flags()
	if f.Changed("threads") {
		settings.DefaultThreads = opts.threads
	}
	if f.Changed("max-threads") {
		settings.TotalThreads = opts.maxThreads
	}
	if f.Changed("dead-cycle") {
		settings.DeadCycle = opts.deadCycle
	}
	if f.Changed("strategy") {
		settings.Strategy = opts.strategy
	}

	logFormat := strings.ToLower(opts.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, usageError("invalid log-format: must be 'text' or 'json'")
	}
	logLevel := strings.ToLower(opts.logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	vars, err := parseVars(opts.vars)
	if err != nil {
		return nil, usageError("%s", err.Error())
	}
	slog.Debug("CLI parameter validation complete.")

	cfg, err := app.NewConfig(app.Config{
		FlowPaths:       args,
		Settings:        settings,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: opts.healthcheckPort,
		HistoryDB:       opts.historyDB,
		Vars:            vars,
	})
	if err != nil {
		return nil, usageError("%s", err.Error())
	}
	return cfg, nil
}

// parseVars turns key=value pairs into variables. Values are YAML scalars or
// collections, so numbers and booleans keep their type.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid --var %q: %w", pair, err)
		}
		vars[key] = v
	}
	return vars, nil
}
