// Package config defines the engine settings shared by every run of a
// process: the worker budget, the default per-run thread count, the
// dead-cycle ceiling and the default submission strategy.
//
// Settings are read from an optional YAML file and then overridden by
// command-line flags.
package config
