// Package config loads the flowstate command line configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// FLOWSTATE_STORE_BACKEND.
const EnvPrefix = "FLOWSTATE"

// Backends lists the supported values of store.backend.
var Backends = []string{"memory", "sqlite", "postgres", "redis", "mongo"}

// Config holds all application configuration
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Table  TableConfig  `mapstructure:"table"`
	Log    LogConfig    `mapstructure:"log"`
	Engine EngineConfig `mapstructure:"engine"`
}

// StoreConfig selects where instances are kept.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// DSN is a file path or SQLite DSN, a PostgreSQL URL, a Redis address or
	// a MongoDB URI, depending on Backend.
	DSN    string `mapstructure:"dsn"`
	Prefix string `mapstructure:"prefix"`
}

// TableConfig points at an optional YAML transition table.
type TableConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EngineConfig struct {
	MaxConflictRetries int `mapstructure:"max_conflict_retries"`
}

// Load reads configuration into v from an optional file, FLOWSTATE_*
// environment variables and defaults, in increasing order of precedence:
// defaults, file, environment, then any flags already bound to v.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.dsn", "flowstate.db")
	v.SetDefault("store.prefix", "flowstate:")

	v.SetDefault("table.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("engine.max_conflict_retries", 3)
}

// bindEnvVars maps store.backend to FLOWSTATE_STORE_BACKEND and so on.
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Store.Backend) {
		return fmt.Errorf("store.backend %q is not one of %s", c.Store.Backend, strings.Join(Backends, ", "))
	}
	if c.Store.Backend != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for backend %s", c.Store.Backend)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	if c.Engine.MaxConflictRetries < 0 {
		return errors.New("engine.max_conflict_retries must not be negative")
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the slog logger described by the configuration, writing
// to w. A nil w means stderr.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := l.SlogLevel()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
