// Package config loads conform settings from defaults, an optional YAML
// file, CONFORM_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: CONFORM_RUN_PARALLELISM sets
// run.parallelism.
const EnvPrefix = "CONFORM"

// Config holds application configuration.
type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	Run     RunConfig     `mapstructure:"run"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DBConfig holds run history settings.
type DBConfig struct {
	// Path of the SQLite history database. Empty disables history.
	Path string `mapstructure:"path"`
}

// RunConfig holds executor defaults.
type RunConfig struct {
	Parallelism int    `mapstructure:"parallelism"`
	FailFast    bool   `mapstructure:"fail_fast"`
	MaxSamples  int    `mapstructure:"max_samples"`
	Quint       string `mapstructure:"quint"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// New returns a viper instance with defaults and environment overrides.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("db.path", ".conform/history.db")
	v.SetDefault("run.parallelism", 4)
	v.SetDefault("run.fail_fast", false)
	v.SetDefault("run.max_samples", 10)
	v.SetDefault("run.quint", "quint")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.addr", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or .conform.yaml in the working
// directory when path is empty, and decodes the merged settings. Only an
// explicitly named file must exist.
func Load(v *viper.Viper, path string) (Config, error) {
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".conform")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Run.Parallelism < 1 {
		return fmt.Errorf("run.parallelism must be at least 1, got %d", c.Run.Parallelism)
	}
	if c.Run.MaxSamples < 1 {
		return fmt.Errorf("run.max_samples must be at least 1, got %d", c.Run.MaxSamples)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
