// Package config provides configuration management for Gavel.
package config

import (
	"fmt"
	"time"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// Config is the root configuration.
type Config struct {
	Store    StoreConfig               `mapstructure:"store"`
	Router   RouterConfig              `mapstructure:"router"`
	Adapters map[string]map[string]any `mapstructure:"adapters"`
	Output   OutputConfig              `mapstructure:"output"`
}

// StoreConfig configures the event store.
type StoreConfig struct {
	Path         string        `mapstructure:"path"`
	WALMode      bool          `mapstructure:"wal_mode"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
}

// RouterConfig configures the execution dispatcher.
type RouterConfig struct {
	// ApplyEnabled opens the apply gate. Off by default: apply-mode execution
	// never happens unless explicitly enabled.
	ApplyEnabled bool `mapstructure:"apply_enabled"`

	// DefaultAdapter is used when a request names no adapter.
	DefaultAdapter string `mapstructure:"default_adapter"`

	// CallTimeout bounds each adapter call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// OutputConfig configures CLI output.
type OutputConfig struct {
	LogLevel      string `mapstructure:"log_level"`
	JSON          bool   `mapstructure:"json"`
	NoColor       bool   `mapstructure:"no_color"`
	TimelineLimit int    `mapstructure:"timeline_limit"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:         "gavel.db",
			WALMode:      true,
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Router: RouterConfig{
			ApplyEnabled:   false,
			DefaultAdapter: "stdout",
			CallTimeout:    30 * time.Second,
		},
		Adapters: map[string]map[string]any{},
		Output: OutputConfig{
			LogLevel:      "info",
			TimelineLimit: 20,
		},
	}
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	const op = "config.Validate"

	if cfg.Store.Path == "" {
		return gerrors.Config(op, "store.path cannot be empty")
	}
	if cfg.Store.MaxOpenConns < 1 {
		return gerrors.Config(op, fmt.Sprintf("store.max_open_conns must be at least 1, got %d", cfg.Store.MaxOpenConns))
	}
	if cfg.Router.DefaultAdapter == "" {
		return gerrors.Config(op, "router.default_adapter cannot be empty")
	}
	if cfg.Router.CallTimeout < 0 {
		return gerrors.Config(op, "router.call_timeout cannot be negative")
	}
	switch cfg.Output.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return gerrors.Config(op, fmt.Sprintf("output.log_level must be one of debug, info, warn, error; got %q", cfg.Output.LogLevel))
	}
	if cfg.Output.TimelineLimit < 0 {
		return gerrors.Config(op, "output.timeline_limit cannot be negative")
	}
	return nil
}
