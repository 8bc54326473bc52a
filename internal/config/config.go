// Package config loads the daemon configuration from flags, an optional
// config file, and CORESTATE_-prefixed environment variables, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corestate/corestate/internal/metrics"
)

// Config holds all configuration for the corestate daemon.
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// Application identity, stamped on exports.
	AppVersion string `mapstructure:"app_version"`

	Store       StoreConfig       `mapstructure:"store"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Metrics     metrics.Config    `mapstructure:"metrics"`
}

// StoreConfig selects and tunes the persistence engine.
type StoreConfig struct {
	// Engine is one of badger, pebble, sqlite.
	Engine string `mapstructure:"engine"`

	// SyncWrites forces fsync on every write for the badger engine.
	SyncWrites bool `mapstructure:"sync_writes"`
}

// DiagnosticsConfig tunes the error log retention bounds.
type DiagnosticsConfig struct {
	MaxErrors     int `mapstructure:"max_errors"`
	PersistedTail int `mapstructure:"persisted_tail"`
}

// Load builds a Config from the command's flags, the optional config
// file, and the environment.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CORESTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8090")
	// No default for data_dir, it must be explicitly configured.
	v.SetDefault("log_level", "info")
	v.SetDefault("app_version", "dev")

	v.SetDefault("store.engine", "badger")
	v.SetDefault("store.sync_writes", true)

	v.SetDefault("diagnostics.max_errors", 500)
	v.SetDefault("diagnostics.persisted_tail", 100)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "corestate")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":    "listen",
		"data-dir":  "data_dir",
		"log-level": "log_level",
		"engine":    "store.engine",
	}

	for flag, key := range flags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or CORESTATE_DATA_DIR environment variable")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	switch cfg.Store.Engine {
	case "badger", "pebble", "sqlite":
	default:
		return fmt.Errorf("unknown store engine %q: expected badger, pebble, or sqlite", cfg.Store.Engine)
	}

	if cfg.Diagnostics.MaxErrors <= 0 {
		return fmt.Errorf("diagnostics.max_errors must be positive")
	}
	if cfg.Diagnostics.PersistedTail <= 0 {
		return fmt.Errorf("diagnostics.persisted_tail must be positive")
	}
	if cfg.Diagnostics.PersistedTail > cfg.Diagnostics.MaxErrors {
		cfg.Diagnostics.PersistedTail = cfg.Diagnostics.MaxErrors
	}

	return nil
}
