package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	cfg.Database.ApplyDefaults()
	applyReplicationDefaults(cfg)
	cfg.Ingest.ApplyDefaults()
	cfg.Loader.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyReplicationDefaults sets upstream feed defaults. The planet feed
// is the default upstream; mirrors are configured explicitly.
func applyReplicationDefaults(cfg *Config) {
	if cfg.Replication.BaseURL == "" {
		cfg.Replication.BaseURL = "https://planet.osm.org/replication/changesets"
	}
	if cfg.Replication.ThrottleDelay == 0 {
		cfg.Replication.ThrottleDelay = time.Second
	}
	if cfg.Replication.MaxAttempts == 0 {
		cfg.Replication.MaxAttempts = 3
	}
	if cfg.Replication.RequestTimeout == 0 {
		cfg.Replication.RequestTimeout = 60 * time.Second
	}
	if cfg.Replication.RetryDelay == 0 {
		cfg.Replication.RetryDelay = 2 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Database = "changesets"
	cfg.Database.User = "changesetd"

	ApplyDefaults(cfg)
	return cfg
}
