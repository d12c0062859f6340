package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/osmtools/changesetd/pkg/config"
	"github.com/osmtools/changesetd/pkg/replication"
	"github.com/osmtools/changesetd/pkg/store/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion status",
	Long: `Show the ingestion status of the changeset database.

Prints the stored changeset count, the sequence table breakdown by status,
how far the database lags behind the remote feed, and the most recently
failed sequences.

Examples:
  changesetd status
  changesetd status --config /etc/changesetd/config.yaml`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.New(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	total, err := store.CountChangesets(ctx)
	if err != nil {
		return err
	}
	newest, err := store.MostRecentClosedAt(ctx)
	if err != nil {
		return err
	}
	counts, err := store.StatusCounts(ctx)
	if err != nil {
		return err
	}
	_, highest, haveTerminal, err := store.TerminalBounds(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Database:")
	fmt.Printf("  changesets:        %d\n", total)
	if newest != nil {
		fmt.Printf("  newest closed_at:  %s\n", newest.UTC().Format(time.RFC3339))
	} else {
		fmt.Printf("  newest closed_at:  -\n")
	}

	fmt.Println("\nSequences:")
	for _, status := range []postgres.SequenceStatus{
		postgres.StatusBackfilled,
		postgres.StatusEmpty,
		postgres.StatusProcessing,
		postgres.StatusPending,
		postgres.StatusFailed,
	} {
		fmt.Printf("  %-12s %d\n", string(status)+":", counts[status])
	}

	// The feed tip is best-effort: status still works offline.
	client := replication.NewClient(cfg.Replication)
	if tip, err := client.Tip(ctx); err != nil {
		fmt.Printf("\nFeed: unavailable (%v)\n", err)
	} else {
		fmt.Printf("\nFeed:\n")
		fmt.Printf("  remote tip:        %d\n", tip)
		if haveTerminal {
			fmt.Printf("  local highest:     %d\n", highest)
			fmt.Printf("  lag:               %d sequences\n", max(tip-highest, 0))
		} else {
			fmt.Printf("  local highest:     - (no sequences ingested yet)\n")
		}
	}

	failed, err := store.FailedSequences(ctx, 10)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		fmt.Println("\nRecent failures:")
		for _, f := range failed {
			fmt.Printf("  %d  %s  %s\n",
				f.Sequence, f.IngestedAt.UTC().Format(time.RFC3339), f.ErrorMessage)
		}
	}

	return nil
}
