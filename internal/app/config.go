package app

import (
	"errors"

	"github.com/specialistvlad/flowgrid/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	FlowPaths []string // hcl files or directories
	Settings  config.Settings

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// HistoryDB is the SQLite database runs are recorded in. Empty disables
	// the history.
	HistoryDB string
	// Vars are the initial variables of the run.
	Vars map[string]any
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.FlowPaths) == 0 {
		return nil, errors.New("at least one flow path is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
