package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osmtools/changesetd/internal/logger"
	"github.com/osmtools/changesetd/pkg/config"
	"github.com/osmtools/changesetd/pkg/ingest"
	"github.com/osmtools/changesetd/pkg/metrics"
	"github.com/osmtools/changesetd/pkg/replication"
	"github.com/osmtools/changesetd/pkg/store/postgres"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Follow the changeset replication feed",
	Long: `Synchronize the database with the changeset replication feed.

On an empty database, sync walks the feed backwards from the current tip to
backfill history, stopping once it reaches data that is already stored. It
then follows the feed, polling for newly published sequences. Failed
sequences are retried a bounded number of times and gaps are refilled on
every start.

The daemon runs until interrupted. Stopping and restarting is safe: the
sequence table records exactly which replication files have been applied.

Examples:
  # Follow the feed with default config
  changesetd sync

  # Follow a mirror with a capped backfill
  CHANGESETD_INGEST_START_SEQUENCE=6000000 changesetd sync

  # Debug logging
  CHANGESETD_LOGGING_LEVEL=DEBUG changesetd sync`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics FIRST so stores and pipelines see them enabled.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = startMetricsServer(cfg.Metrics.Port)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	store, err := postgres.New(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize changeset store: %w", err)
	}
	defer store.Close()

	client := replication.NewClient(cfg.Replication)
	logger.Info("Replication feed configured", "base_url", cfg.Replication.BaseURL)

	scheduler := ingest.NewScheduler(cfg.Ingest, store, client, metrics.NewIngestMetrics())

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- scheduler.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Sync is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("Sync shutdown error", "error", err)
				return err
			}
		case <-time.After(cfg.ShutdownTimeout):
			logger.Error("Graceful shutdown timed out", "timeout", cfg.ShutdownTimeout)
			return errors.New("shutdown timed out")
		}
		logger.Info("Sync stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Sync error", "error", err)
			return err
		}
		logger.Info("Sync stopped")
	}

	shutdownMetricsServer(metricsServer, cfg.ShutdownTimeout)
	return nil
}

// startMetricsServer serves the Prometheus endpoint in the background.
func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", "error", err)
		}
	}()
	return srv
}

func shutdownMetricsServer(srv *http.Server, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Metrics server shutdown error", "error", err)
	}
}
