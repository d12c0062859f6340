package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"

database:
  host: localhost
  database: changesets
  user: osm
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level normalized to INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default database port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Replication.BaseURL != "https://planet.osm.org/replication/changesets" {
		t.Errorf("Expected planet feed default, got %q", cfg.Replication.BaseURL)
	}
	if cfg.Replication.ThrottleDelay != time.Second {
		t.Errorf("Expected default throttle 1s, got %v", cfg.Replication.ThrottleDelay)
	}
	if cfg.Ingest.NumWorkers != 4 || cfg.Ingest.MaxRetries != 3 {
		t.Errorf("Unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Ingest.StaleProcessingGrace != 10*time.Minute {
		t.Errorf("Expected default stale grace 10m, got %v", cfg.Ingest.StaleProcessingGrace)
	}
	if cfg.Loader.BatchSize != 50000 {
		t.Errorf("Expected default loader batch size 50000, got %d", cfg.Loader.BatchSize)
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: DEBUG
  format: json

database:
  host: db.internal
  port: 5433
  database: changesets
  user: osm
  password: secret
  auto_migrate: true

replication:
  base_url: https://mirror.example.org/replication/changesets
  throttle_delay: 250ms

ingest:
  num_workers: 8
  start_sequence: 6000000
  min_sequence: 5000000

loader:
  batch_size: 10000
  retention_days: 90
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Errorf("Expected json format, got %q", cfg.Logging.Format)
	}
	if !cfg.Database.AutoMigrate {
		t.Error("Expected auto_migrate true")
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Expected port 5433, got %d", cfg.Database.Port)
	}
	if cfg.Replication.ThrottleDelay != 250*time.Millisecond {
		t.Errorf("Expected throttle 250ms, got %v", cfg.Replication.ThrottleDelay)
	}
	if cfg.Ingest.StartSequence != 6000000 || cfg.Ingest.MinSequence != 5000000 {
		t.Errorf("Unexpected ingest sequences: %+v", cfg.Ingest)
	}
	if cfg.Loader.RetentionDays != 90 {
		t.Errorf("Expected retention_days 90, got %d", cfg.Loader.RetentionDays)
	}
}

func TestLoad_InvalidLevel(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: LOUD

database:
  host: localhost
  database: changesets
  user: osm
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error for invalid log level")
	}
}

func TestValidate_StartBelowMin(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.Host = "db"
	cfg.Database.Database = "c"
	cfg.Database.User = "u"
	cfg.Ingest.StartSequence = 10
	cfg.Ingest.MinSequence = 100

	if err := Validate(cfg); err == nil {
		t.Error("Expected error when start_sequence is below min_sequence")
	}
}

func TestValidate_MissingDatabase(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.Host = ""

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for missing database host")
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Database.Host = "db.example"
	cfg.Replication.BaseURL = "https://mirror.example.org/replication/changesets"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Saved config missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of saved config returned error: %v", err)
	}
	if reloaded.Database.Host != "db.example" {
		t.Errorf("Expected round-tripped host, got %q", reloaded.Database.Host)
	}
	if reloaded.Replication.BaseURL != cfg.Replication.BaseURL {
		t.Errorf("Expected round-tripped base_url, got %q", reloaded.Replication.BaseURL)
	}
}

func TestInitConfig_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath() returned error: %v", err)
	}
	if err := InitConfigToPath(path, false); err == nil {
		t.Error("Expected error when overwriting without --force")
	}
	if err := InitConfigToPath(path, true); err != nil {
		t.Errorf("Expected force overwrite to succeed, got %v", err)
	}
}
