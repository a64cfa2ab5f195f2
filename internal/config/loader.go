package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// Loader handles configuration loading and merging. Precedence, lowest to
// highest: defaults, config file, GAVEL_* environment variables.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("GAVEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{"."},
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths adds directories to search for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = append(l.searchPaths, paths...)
	return l
}

// Load loads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, gerrors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, gerrors.ConfigWrap(err, op, "failed to unmarshal config")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("store.path", defaults.Store.Path)
	l.v.SetDefault("store.wal_mode", defaults.Store.WALMode)
	l.v.SetDefault("store.busy_timeout", defaults.Store.BusyTimeout)
	l.v.SetDefault("store.max_open_conns", defaults.Store.MaxOpenConns)
	l.v.SetDefault("store.max_idle_conns", defaults.Store.MaxIdleConns)

	l.v.SetDefault("router.apply_enabled", defaults.Router.ApplyEnabled)
	l.v.SetDefault("router.default_adapter", defaults.Router.DefaultAdapter)
	l.v.SetDefault("router.call_timeout", defaults.Router.CallTimeout)

	l.v.SetDefault("output.log_level", defaults.Output.LogLevel)
	l.v.SetDefault("output.json", defaults.Output.JSON)
	l.v.SetDefault("output.no_color", defaults.Output.NoColor)
	l.v.SetDefault("output.timeline_limit", defaults.Output.TimelineLimit)
}

func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		return l.v.ReadInConfig()
	}

	l.v.SetConfigName("gavel.config")
	l.v.SetConfigType("yaml")
	for _, path := range l.searchPaths {
		l.v.AddConfigPath(path)
	}

	err := l.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// No config file is fine; defaults and env vars still apply.
		return nil
	}
	return err
}
