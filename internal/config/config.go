package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/uthreads/internal/scheduler"
)

// Config holds configuration for the uthreads tools.
type Config struct {
	Quantum    time.Duration `yaml:"quantum"`     // Length of one scheduling quantum (default 100ms)
	MaxThreads int           `yaml:"max_threads"` // Live-thread limit including thread 0 (default 100)
	Verify     bool          `yaml:"verify"`      // Check scheduler invariants after every operation
	TraceLimit int           `yaml:"trace_limit"` // Events kept in memory per run (default 100000)
	Addr       string        `yaml:"addr"`        // Inspector listen address (default ":8090")
	LogLevel   string        `yaml:"log_level"`   // Log level: debug, info, warn, error
	LogFormat  string        `yaml:"log_format"`  // Log format: text, json
	DBPath     string        `yaml:"db_path"`     // SQLite database path (":memory:" for testing)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Quantum:    100 * time.Millisecond,
		MaxThreads: 100,
		TraceLimit: 100000,
		Addr:       ":8090",
		LogLevel:   "info",
		LogFormat:  "text",
		DBPath:     DefaultDBPath(),
	}
}

// DefaultDBPath returns ~/.uthreads/uthreads.db, or a relative path when the
// home directory cannot be resolved.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "uthreads.db"
	}
	return home + "/.uthreads/uthreads.db"
}

// Load reads a YAML config file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Quantum <= 0 {
		return fmt.Errorf("quantum must be positive, got %s", c.Quantum)
	}
	if c.MaxThreads < 1 {
		return fmt.Errorf("max_threads must be at least 1, got %d", c.MaxThreads)
	}
	if c.TraceLimit < 0 {
		return fmt.Errorf("trace_limit must not be negative, got %d", c.TraceLimit)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// SchedulerConfig converts to the scheduler's own configuration.
func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Quantum:          c.Quantum,
		MaxThreads:       c.MaxThreads,
		VerifyInvariants: c.Verify,
	}
}
