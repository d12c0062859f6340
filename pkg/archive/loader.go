// Package archive implements the one-shot bulk import of a changeset
// archive file: a producer streams and filters the XML, a bounded channel
// of batches provides backpressure, and a worker pool writes batches to
// the store.
package archive

import (
	"bufio"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/osmtools/changesetd/internal/logger"
	"github.com/osmtools/changesetd/pkg/changeset"
	"github.com/osmtools/changesetd/pkg/metrics"
)

// Sink receives parsed batches. *postgres.Store satisfies it.
type Sink interface {
	UpsertChangesets(ctx context.Context, batch []*changeset.Changeset) (int64, error)
}

// Config holds archive loader settings.
type Config struct {
	// BatchSize is the number of changesets per write transaction.
	// Default: 50000.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// QueueSize bounds the number of batches in flight between the
	// producer and the writers; the producer blocks when it is full.
	// Default: 4.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// NumWorkers is the number of concurrent batch writers. Default: 4.
	NumWorkers int `mapstructure:"num_workers" yaml:"num_workers"`

	// BufferSize is the read buffer over the archive file. Default: 256KiB.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`

	// RetentionDays, when positive, drops changesets whose closed_at is
	// older than now minus the retention window.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
}

// ApplyDefaults sets default values for unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50000
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = 4
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256 * 1024
	}
}

// Summary reports what a load run did.
type Summary struct {
	Parsed  int64
	Written int64
	Batches int64
}

// Loader is the archive import pipeline.
type Loader struct {
	cfg     Config
	sink    Sink
	metrics *metrics.IngestMetrics
	log     *slog.Logger
	now     func() time.Time
}

// NewLoader creates a Loader. m may be nil when metrics are disabled.
func NewLoader(cfg Config, sink Sink, m *metrics.IngestMetrics) *Loader {
	cfg.ApplyDefaults()
	return &Loader{
		cfg:     cfg,
		sink:    sink,
		metrics: m,
		log:     logger.With("component", "archive_loader"),
		now:     time.Now,
	}
}

// Run imports the archive at path, filtering by the optional created_at
// date range. Files ending in .bz2 are decompressed on the fly.
func (l *Loader) Run(ctx context.Context, path string, from, to time.Time) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, l.cfg.BufferSize)
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(r)
	}

	l.log.Info("Starting archive import",
		"file", path,
		"from", dateString(from),
		"to", dateString(to),
		"batch_size", l.cfg.BatchSize,
		"workers", l.cfg.NumWorkers,
	)
	return l.RunReader(ctx, r, from, to)
}

// RunReader imports a decompressed XML stream.
func (l *Loader) RunReader(ctx context.Context, r io.Reader, from, to time.Time) (Summary, error) {
	var summary Summary
	var written, batches atomic.Int64

	batchCh := make(chan []*changeset.Changeset, l.cfg.QueueSize)

	g, gctx := errgroup.WithContext(ctx)

	for range l.cfg.NumWorkers {
		g.Go(func() error {
			for batch := range batchCh {
				n, err := l.sink.UpsertChangesets(gctx, batch)
				if err != nil {
					return fmt.Errorf("write archive batch: %w", err)
				}
				written.Add(n)
				batches.Add(1)
				l.metrics.ChangesetsUpserted(n)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(batchCh)
		parsed, err := l.produce(gctx, r, from, to, batchCh)
		summary.Parsed = parsed
		return err
	})

	err := g.Wait()
	summary.Written = written.Load()
	summary.Batches = batches.Load()
	if err != nil {
		return summary, err
	}
	l.log.Info("Archive import finished",
		"parsed", summary.Parsed,
		"written", summary.Written,
		"batches", summary.Batches,
	)
	return summary, nil
}

// produce streams the parser, applies the zero-change and retention
// filters, and sends full batches downstream. The bounded channel blocks
// the producer when the writers fall behind.
func (l *Loader) produce(ctx context.Context, r io.Reader, from, to time.Time, out chan<- []*changeset.Changeset) (int64, error) {
	parser := changeset.NewParser(r, changeset.ParserOptions{
		FromDate: from,
		ToDate:   to,
	})

	var retentionFloor time.Time
	if l.cfg.RetentionDays > 0 {
		retentionFloor = l.now().AddDate(0, 0, -l.cfg.RetentionDays)
	}

	var parsed int64
	batch := make([]*changeset.Changeset, 0, l.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		minCreated := batch[0].CreatedAt
		for _, cs := range batch {
			if cs.CreatedAt.Before(minCreated) {
				minCreated = cs.CreatedAt
			}
		}
		l.log.Info("Queueing archive batch",
			"size", len(batch),
			"min_created_at", minCreated.UTC().Format(time.RFC3339),
		)
		select {
		case out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
		batch = make([]*changeset.Changeset, 0, l.cfg.BatchSize)
		return nil
	}

	for {
		cs, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return parsed, fmt.Errorf("archive parse error: %w", err)
		}

		// The archive carries a long tail of empty changesets; skip them.
		if cs.NumChanges == 0 {
			continue
		}
		if !retentionFloor.IsZero() && cs.ClosedAt != nil && cs.ClosedAt.Before(retentionFloor) {
			continue
		}

		batch = append(batch, cs)
		parsed++

		if len(batch) >= l.cfg.BatchSize {
			if err := flush(); err != nil {
				return parsed, err
			}
		}
	}

	return parsed, flush()
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
