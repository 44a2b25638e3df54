package flow

import (
	"strconv"
	"strings"
)

// Config is an insertion-ordered mapping of a node's configuration values.
// Values are either static literals (for meta keys such as "shape") or the
// source text of an expression that is evaluated at run time.
type Config struct {
	keys   []string
	values map[string]string
}

// NewConfig creates an empty configuration.
func NewConfig() *Config {
	return &Config{values: make(map[string]string)}
}

// Set stores a value, keeping the original position when the key already exists.
func (c *Config) Set(key, value string) {
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Get returns the value stored under key.
func (c *Config) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.values[key]
	return v, ok
}

// String returns the trimmed value stored under key, or def when the key is
// missing or blank.
func (c *Config) String(key, def string) string {
	v, ok := c.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// Int parses the value stored under key as an integer, returning def when the
// key is missing or not a number.
func (c *Config) Int(key string, def int) int {
	return ToInt(c.String(key, ""), def)
}

// Keys returns the configuration keys in insertion order.
func (c *Config) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of stored keys.
func (c *Config) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// ToInt converts a decimal string to an int, returning def on failure.
// Fractional values are truncated.
func ToInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}
