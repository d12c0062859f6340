package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osmtools/changesetd/internal/logger"
	"github.com/osmtools/changesetd/pkg/config"
	"github.com/osmtools/changesetd/pkg/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the changeset database.

This command applies pending schema migrations to the configured PostgreSQL
database. It is required after upgrading changesetd when schema changes have
been made, unless database.auto_migrate is enabled.

Examples:
  # Run migrations with default config
  changesetd migrate

  # Run migrations with custom config
  changesetd migrate --config /etc/changesetd/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations",
		"host", cfg.Database.Host, "database", cfg.Database.Database)

	if err := postgres.RunMigrations(context.Background(), &cfg.Database); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (database: %s)\n", cfg.Database.Database)
	return nil
}
