package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/flowgrid/internal/strategy"
)

// Defaults applied to zero-valued settings.
const (
	DefaultTotalThreads   = 64
	DefaultDefaultThreads = 8
	DefaultDeadCycle      = 5000
)

// Settings holds the engine configuration.
type Settings struct {
	// TotalThreads bounds the number of tasks running at once across all runs.
	TotalThreads int `yaml:"total_threads"`
	// DefaultThreads is the per-run thread count used when the root node does
	// not declare one.
	DefaultThreads int `yaml:"default_threads"`
	// DeadCycle is the ceiling on task executions per run. Zero disables the
	// check.
	DeadCycle int `yaml:"dead_cycle"`
	// Strategy is the default submission strategy name.
	Strategy string `yaml:"strategy"`
}

// fileSettings mirrors Settings with pointers so that explicit zeros in the
// file can be told apart from missing keys.
type fileSettings struct {
	TotalThreads   *int    `yaml:"total_threads"`
	DefaultThreads *int    `yaml:"default_threads"`
	DeadCycle      *int    `yaml:"dead_cycle"`
	Strategy       *string `yaml:"strategy"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		TotalThreads:   DefaultTotalThreads,
		DefaultThreads: DefaultDefaultThreads,
		DeadCycle:      DefaultDeadCycle,
		Strategy:       strategy.Random,
	}
}

// Load reads settings from a YAML file on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	if err := s.merge(data); err != nil {
		return s, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return s, s.Validate()
}

// Parse reads settings from YAML bytes on top of the defaults.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := s.merge(data); err != nil {
		return s, err
	}
	return s, s.Validate()
}

func (s *Settings) merge(data []byte) error {
	var fs fileSettings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fs); err != nil {
		// An empty document means "no overrides".
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if fs.TotalThreads != nil {
		s.TotalThreads = *fs.TotalThreads
	}
	if fs.DefaultThreads != nil {
		s.DefaultThreads = *fs.DefaultThreads
	}
	if fs.DeadCycle != nil {
		s.DeadCycle = *fs.DeadCycle
	}
	if fs.Strategy != nil {
		s.Strategy = *fs.Strategy
	}
	return nil
}

// Validate checks the settings for values the engine cannot work with.
func (s Settings) Validate() error {
	var errs []error
	if s.TotalThreads < 1 {
		errs = append(errs, fmt.Errorf("total_threads must be at least 1, got %d", s.TotalThreads))
	}
	if s.DefaultThreads < 1 {
		errs = append(errs, fmt.Errorf("default_threads must be at least 1, got %d", s.DefaultThreads))
	}
	if s.DeadCycle < 0 {
		errs = append(errs, fmt.Errorf("dead_cycle must not be negative, got %d", s.DeadCycle))
	}
	if !strategy.Valid(s.Strategy) {
		errs = append(errs, fmt.Errorf("unknown strategy %q, expected one of %s", s.Strategy, strings.Join(strategy.Names(), ", ")))
	}
	return errors.Join(errs...)
}
