package postgres

import (
	"fmt"
	"time"
)

// Config holds the configuration for the changeset store.
type Config struct {
	// URL is a full PostgreSQL connection string. When set it takes
	// precedence over the discrete connection fields.
	URL string `mapstructure:"url" yaml:"url,omitempty"`

	// Connection parameters
	Host     string `mapstructure:"host"      yaml:"host"`
	Port     int    `mapstructure:"port"      yaml:"port"`
	Database string `mapstructure:"database"  yaml:"database"`
	User     string `mapstructure:"user"      yaml:"user"`
	Password string `mapstructure:"password"  yaml:"password"`
	SSLMode  string `mapstructure:"ssl_mode"  yaml:"ssl_mode"`

	// Connection pool
	MaxConns          int32         `mapstructure:"max_conns"           yaml:"max_conns"`           // Default: 16
	MinConns          int32         `mapstructure:"min_conns"           yaml:"min_conns"`           // Default: 2
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"   yaml:"max_conn_lifetime"`   // Default: 1h
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"  yaml:"max_conn_idle_time"`  // Default: 30m
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" yaml:"health_check_period"` // Default: 1m

	// Timeouts
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"   yaml:"connect_timeout"`   // Default: 30s
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"` // Default: 5m

	// AutoMigrate runs schema migrations on startup. Default: false
	// (run `changesetd migrate` manually).
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate"`

	// WriteLegacyMetadata keeps the legacy metadata(id=1) row updated for
	// older consumers. The sequences table stays authoritative either way.
	// Default: false.
	WriteLegacyMetadata bool `mapstructure:"write_legacy_metadata" yaml:"write_legacy_metadata"`
}

// ApplyDefaults sets default values for unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 16
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.StatementTimeout == 0 {
		c.StatementTimeout = 5 * time.Minute
	}
}

// Validate checks whether the configuration is usable.
func (c *Config) Validate() error {
	if c.URL != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("database host is required (or set database.url)")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min_conns (%d) cannot be greater than max_conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// ConnectionString builds the PostgreSQL connection string.
func (c *Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host,
		c.Port,
		c.Database,
		c.User,
		c.Password,
		c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}
