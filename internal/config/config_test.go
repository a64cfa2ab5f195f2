package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gavel.db", cfg.Store.Path)
	assert.True(t, cfg.Store.WALMode)
	assert.Equal(t, 5*time.Second, cfg.Store.BusyTimeout)
	assert.Equal(t, 10, cfg.Store.MaxOpenConns)
	assert.Equal(t, 5, cfg.Store.MaxIdleConns)

	assert.False(t, cfg.Router.ApplyEnabled)
	assert.Equal(t, "stdout", cfg.Router.DefaultAdapter)
	assert.Equal(t, 30*time.Second, cfg.Router.CallTimeout)

	assert.Equal(t, "info", cfg.Output.LogLevel)
	assert.False(t, cfg.Output.JSON)
	assert.Equal(t, 20, cfg.Output.TimelineLimit)

	assert.NoError(t, Validate(cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store.path cannot be empty",
		},
		{
			name:    "max_open_conns below 1",
			mutate:  func(c *Config) { c.Store.MaxOpenConns = 0 },
			wantErr: "store.max_open_conns must be at least 1",
		},
		{
			name:    "empty default adapter",
			mutate:  func(c *Config) { c.Router.DefaultAdapter = "" },
			wantErr: "router.default_adapter cannot be empty",
		},
		{
			name:    "negative call timeout",
			mutate:  func(c *Config) { c.Router.CallTimeout = -time.Second },
			wantErr: "router.call_timeout cannot be negative",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Output.LogLevel = "trace" },
			wantErr: "output.log_level must be one of",
		},
		{
			name:    "negative timeline limit",
			mutate:  func(c *Config) { c.Output.TimelineLimit = -1 },
			wantErr: "output.timeline_limit cannot be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, gerrors.IsKind(err, gerrors.KindConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAcceptsAllLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := DefaultConfig()
		cfg.Output.LogLevel = level
		assert.NoError(t, Validate(cfg), "level %q", level)
	}
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := NewLoader().WithSearchPaths(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Store, cfg.Store)
	assert.Equal(t, DefaultConfig().Router, cfg.Router)
}

func TestLoaderConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gavel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  path: /tmp/custom.db
  max_open_conns: 3
router:
  default_adapter: stdout-debug
  call_timeout: 10s
output:
  log_level: debug
  timeline_limit: 5
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Store.MaxOpenConns)
	assert.Equal(t, "stdout-debug", cfg.Router.DefaultAdapter)
	assert.Equal(t, 10*time.Second, cfg.Router.CallTimeout)
	assert.Equal(t, "debug", cfg.Output.LogLevel)
	assert.Equal(t, 5, cfg.Output.TimelineLimit)

	// Unset keys keep their defaults.
	assert.True(t, cfg.Store.WALMode)
	assert.False(t, cfg.Router.ApplyEnabled)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gavel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: \"\"\n"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindConfig))
}

func TestLoaderMissingExplicitFile(t *testing.T) {
	_, err := NewLoader().WithConfigPath("/nonexistent/gavel.yaml").Load()
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindConfig))
}

func TestLoaderEnvOverride(t *testing.T) {
	t.Setenv("GAVEL_ROUTER_DEFAULT_ADAPTER", "env-adapter")
	t.Setenv("GAVEL_OUTPUT_LOG_LEVEL", "warn")

	cfg, err := NewLoader().WithSearchPaths(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, "env-adapter", cfg.Router.DefaultAdapter)
	assert.Equal(t, "warn", cfg.Output.LogLevel)
}

func TestLoaderAdapterSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gavel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
adapters:
  stdout:
    json_output: true
    prefix: "[custom]"
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	require.Contains(t, cfg.Adapters, "stdout")
	assert.Equal(t, true, cfg.Adapters["stdout"]["json_output"])
	assert.Equal(t, "[custom]", cfg.Adapters["stdout"]["prefix"])
}
