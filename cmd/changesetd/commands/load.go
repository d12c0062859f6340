package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osmtools/changesetd/pkg/archive"
	"github.com/osmtools/changesetd/pkg/config"
	"github.com/osmtools/changesetd/pkg/metrics"
	"github.com/osmtools/changesetd/pkg/store/postgres"
)

var (
	loadFrom     string
	loadTo       string
	loadTruncate bool
)

var loadCmd = &cobra.Command{
	Use:   "load <archive-file>",
	Short: "Import a changeset archive dump",
	Long: `Import a planet changeset archive into the database.

The archive is the planet changesets dump (changesets-latest.osm.bz2 or the
decompressed XML). Changesets with zero changes are skipped. The import is
idempotent and can be combined with 'sync': the upsert reconciliation keeps
whichever copy of each changeset carries more information.

Examples:
  # Import the full dump
  changesetd load changesets-latest.osm.bz2

  # Import a date window
  changesetd load --from 2024-01-01 --to 2024-06-30 changesets-latest.osm.bz2

  # Drop existing data first
  changesetd load --truncate changesets-latest.osm.bz2`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadFrom, "from", "", "Only import changesets created on or after this date (YYYY-MM-DD)")
	loadCmd.Flags().StringVar(&loadTo, "to", "", "Only import changesets created on or before this date (YYYY-MM-DD)")
	loadCmd.Flags().BoolVar(&loadTruncate, "truncate", false, "Truncate existing changeset data before importing")
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	from, err := parseDateFlag(loadFrom)
	if err != nil {
		return fmt.Errorf("invalid --from date: %w", err)
	}
	to, err := parseDateFlag(loadTo)
	if err != nil {
		return fmt.Errorf("invalid --to date: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", loadTo, loadFrom)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := postgres.New(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize changeset store: %w", err)
	}
	defer store.Close()

	if loadTruncate {
		if err := store.TruncateChangesets(ctx); err != nil {
			return err
		}
	}

	loader := archive.NewLoader(cfg.Loader, store, metrics.NewIngestMetrics())

	start := time.Now()
	summary, err := loader.Run(ctx, args[0], from, to)
	if err != nil {
		return fmt.Errorf("archive import failed: %w", err)
	}

	fmt.Printf("Imported %d changesets (%d parsed, %d batches) in %s\n",
		summary.Written, summary.Parsed, summary.Batches,
		time.Since(start).Round(time.Second))
	return nil
}

// parseDateFlag parses an optional YYYY-MM-DD flag value.
func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
