package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate

	"github.com/osmtools/changesetd/internal/logger"
	"github.com/osmtools/changesetd/pkg/store/postgres/migrations"
)

// runMigrations applies the embedded schema migrations. golang-migrate
// takes a PostgreSQL advisory lock, so concurrent instances are safe.
func runMigrations(ctx context.Context, connString string, log *slog.Logger) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("No migrations to apply (schema is up to date)")
	case err != nil:
		return fmt.Errorf("migration failed: %w", err)
	default:
		log.Info("Migrations applied successfully")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if err == nil {
		log.Info("Current schema version", "version", version, "dirty", dirty)
		if dirty {
			log.Warn("Schema is in dirty state, manual intervention may be required")
		}
	}

	return nil
}

// RunMigrations applies migrations without creating a Store. Used by the
// `changesetd migrate` command.
func RunMigrations(ctx context.Context, cfg *Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	return runMigrations(ctx, cfg.ConnectionString(), logger.With("component", "migrations"))
}
