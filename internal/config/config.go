// Package config loads the licensing service configuration from environment
// variables (prefix LICENSED) with an optional YAML overlay. Defaults come
// from Default(); environment values take precedence over the file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete service configuration.
type Config struct {
	Registration RegistrationConfig `yaml:"registration" envconfig:"REGISTRATION"`
	Quota        QuotaConfig        `yaml:"quota" envconfig:"QUOTA"`
	Store        StoreConfig        `yaml:"store" envconfig:"STORE"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Metrics      MetricsConfig      `yaml:"metrics" envconfig:"METRICS"`
}

// RegistrationConfig tunes the registration tracker.
type RegistrationConfig struct {
	// Delay a node must stay registered before a license is issued.
	Delay time.Duration `yaml:"delay" envconfig:"DELAY"`
	// GraceWindow beyond the delay before an unpromoted registration is
	// swept as abandoned. Absorbs missed sweeps.
	GraceWindow   time.Duration `yaml:"grace_window" envconfig:"GRACE_WINDOW"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
}

// QuotaConfig tunes device quotas and issuance behavior.
type QuotaConfig struct {
	// MaxDevices is the base device quota stamped on new licenses.
	MaxDevices int `yaml:"max_devices" envconfig:"MAX_DEVICES"`
	// AutoActivate activates the registering node's device on issuance.
	AutoActivate bool `yaml:"auto_activate" envconfig:"AUTO_ACTIVATE"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Driver is one of "file", "postgres", "mongo".
	Driver string `yaml:"driver" envconfig:"DRIVER"`
	// Path is the snapshot location for the file driver.
	Path string `yaml:"path" envconfig:"PATH"`
	// DSN is the connection string for postgres/mongo drivers.
	DSN string `yaml:"dsn" envconfig:"DSN"`
	// Database is the database name for the mongo driver.
	Database string `yaml:"database" envconfig:"DATABASE"`
}

// RateLimitConfig guards activation attempts per license key.
type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled" envconfig:"ENABLED"`
	PerMinute float64 `yaml:"per_minute" envconfig:"PER_MINUTE"`
	Burst     int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// MetricsConfig controls the observability endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" envconfig:"ENABLED"`
	ListenAddr string `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Registration: RegistrationConfig{
			Delay:         15 * time.Minute,
			GraceWindow:   time.Hour,
			SweepInterval: time.Minute,
		},
		Quota: QuotaConfig{
			MaxDevices:   3,
			AutoActivate: true,
		},
		Store: StoreConfig{
			Driver:   "file",
			Path:     "data/licenses.json",
			Database: "licensing",
		},
		RateLimit: RateLimitConfig{
			Enabled:   false,
			PerMinute: 30,
			Burst:     10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9464",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty and present), then environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process("LICENSED", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Registration.Delay <= 0 {
		return fmt.Errorf("registration delay must be positive, got %s", c.Registration.Delay)
	}
	if c.Registration.GraceWindow < 0 {
		return fmt.Errorf("grace window must not be negative, got %s", c.Registration.GraceWindow)
	}
	if c.Registration.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Registration.SweepInterval)
	}
	if c.Quota.MaxDevices < 1 {
		return fmt.Errorf("max devices must be at least 1, got %d", c.Quota.MaxDevices)
	}

	switch c.Store.Driver {
	case "file":
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the file driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store DSN is required for the postgres driver")
		}
	case "mongo":
		if c.Store.DSN == "" {
			return fmt.Errorf("store DSN is required for the mongo driver")
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store database is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.PerMinute <= 0 {
			return fmt.Errorf("rate limit per-minute must be positive, got %v", c.RateLimit.PerMinute)
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1, got %d", c.RateLimit.Burst)
		}
	}
	return nil
}
