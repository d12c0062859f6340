package postgres

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{Host: "db", Database: "changesets", User: "osm"}
	cfg.ApplyDefaults()

	if cfg.Port != 5432 {
		t.Errorf("Expected default port 5432, got %d", cfg.Port)
	}
	if cfg.SSLMode != "prefer" {
		t.Errorf("Expected default sslmode prefer, got %q", cfg.SSLMode)
	}
	if cfg.MaxConns != 16 || cfg.MinConns != 2 {
		t.Errorf("Unexpected pool defaults: max=%d min=%d", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.StatementTimeout != 5*time.Minute {
		t.Errorf("Expected default statement timeout 5m, got %v", cfg.StatementTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid discrete fields", Config{Host: "db", Database: "c", User: "u", MaxConns: 4, MinConns: 1}, false},
		{"url short-circuits", Config{URL: "postgres://u:p@db/c"}, false},
		{"missing host", Config{Database: "c", User: "u"}, true},
		{"missing database", Config{Host: "db", User: "u"}, true},
		{"missing user", Config{Host: "db", Database: "c"}, true},
		{"min above max", Config{Host: "db", Database: "c", User: "u", MaxConns: 2, MinConns: 8}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ConnectionString(t *testing.T) {
	cfg := &Config{Host: "db.internal", Database: "changesets", User: "osm", Password: "secret"}
	cfg.ApplyDefaults()

	cs := cfg.ConnectionString()
	for _, want := range []string{"host=db.internal", "port=5432", "dbname=changesets", "user=osm", "sslmode=prefer"} {
		if !strings.Contains(cs, want) {
			t.Errorf("Expected connection string to contain %q, got %q", want, cs)
		}
	}

	// An explicit URL wins over the discrete fields.
	cfg.URL = "postgres://other/db"
	if got := cfg.ConnectionString(); got != "postgres://other/db" {
		t.Errorf("Expected URL to take precedence, got %q", got)
	}
}

func TestSequenceStatus_IsTerminal(t *testing.T) {
	terminal := map[SequenceStatus]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusBackfilled: true,
		StatusEmpty:      true,
		StatusFailed:     false,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}
