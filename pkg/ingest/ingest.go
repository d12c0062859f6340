// Package ingest implements the replication ingestion pipeline: a
// scheduler that turns the remote tip and the local sequence table into a
// stream of sequence numbers, a pool of workers that fetch, parse and
// upsert each one, and a retry manager for failed sequences.
package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/osmtools/changesetd/pkg/changeset"
	"github.com/osmtools/changesetd/pkg/store/postgres"
)

// Store is the slice of the persistent store the pipeline needs.
// *postgres.Store satisfies it.
type Store interface {
	Existing(ctx context.Context, ids []int64) (map[int64]postgres.ExistingState, error)
	UpsertChangesets(ctx context.Context, batch []*changeset.Changeset) (int64, error)
	MarkSequence(ctx context.Context, seq int64, status postgres.SequenceStatus, errMsg string) error
	TerminalBounds(ctx context.Context) (lowest, highest int64, ok bool, err error)
	MissingOrNonTerminal(ctx context.Context, lo, hi int64) ([]int64, error)
	MostRecentClosedAt(ctx context.Context) (*time.Time, error)
	ReclaimStale(ctx context.Context, grace time.Duration) ([]int64, error)
	WriteLegacyState(ctx context.Context, seq int64, success bool) error
}

// Fetcher fetches the remote tip and replication files.
// *replication.Client satisfies it.
type Fetcher interface {
	Tip(ctx context.Context) (int64, error)
	Fetch(ctx context.Context, seq int64) ([]byte, error)
}

// Config holds ingestion pipeline settings.
type Config struct {
	// NumWorkers is the size of the worker pool. Default: 4.
	NumWorkers int `mapstructure:"num_workers" yaml:"num_workers"`

	// BatchSize is the number of changesets written per transaction.
	// Default: 1000.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// QueueSize bounds the sequence queue between the scheduler and the
	// workers. Default: 1000.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// PollingInterval is how often the remote tip is re-read in
	// continuous mode. Default: 60s.
	PollingInterval time.Duration `mapstructure:"polling_interval" yaml:"polling_interval"`

	// RetryInterval is the delay before a failed sequence is retried.
	// Default: 60s.
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`

	// MaxRetries bounds retries per sequence; after that the sequence
	// rests in failed for operator attention. Default: 3.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// StaleProcessingGrace is how long a sequence may sit in processing
	// before it is reclaimed to failed. Default: 10m.
	StaleProcessingGrace time.Duration `mapstructure:"stale_processing_grace" yaml:"stale_processing_grace"`

	// ReclaimInterval is how often the stale-processing scan runs.
	// Default: 5m.
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval" yaml:"reclaim_interval"`

	// StartSequence, when positive, caps the initial descent: the
	// scheduler starts from min(tip, StartSequence).
	StartSequence int64 `mapstructure:"start_sequence" yaml:"start_sequence"`

	// MinSequence is the lowest sequence the historical descent may
	// reach. Default: 1.
	MinSequence int64 `mapstructure:"min_sequence" yaml:"min_sequence"`
}

// ApplyDefaults sets default values for unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.NumWorkers <= 0 {
		c.NumWorkers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = time.Minute
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.StaleProcessingGrace <= 0 {
		c.StaleProcessingGrace = 10 * time.Minute
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = 5 * time.Minute
	}
	if c.MinSequence <= 0 {
		c.MinSequence = 1
	}
}

// Stats are the in-memory pipeline counters.
type Stats struct {
	SequencesProcessed atomic.Int64
	ChangesetsUpserted atomic.Int64
	Errors             atomic.Int64
	Retries            atomic.Int64
}

// job is one unit of work handed to a worker.
type job struct {
	seq        int64
	descending bool
}
