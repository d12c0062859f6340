package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/osmtools/changesetd/internal/logger"
	"github.com/osmtools/changesetd/pkg/metrics"
	"github.com/osmtools/changesetd/pkg/store/postgres"
)

// Scheduler drives the replication ingestion: it computes the initial
// work from the remote tip and the sequence table, dispatches sequence
// numbers to a worker pool, requeues failures through the retry manager,
// and polls the tip for new work indefinitely.
type Scheduler struct {
	cfg     Config
	store   Store
	fetcher Fetcher
	metrics *metrics.IngestMetrics
	stats   *Stats

	queue       chan job
	retry       *retryManager
	cutoff      *time.Time
	descentDone atomic.Bool

	log *slog.Logger
}

// NewScheduler creates a Scheduler. m may be nil when metrics are
// disabled.
func NewScheduler(cfg Config, store Store, fetcher Fetcher, m *metrics.IngestMetrics) *Scheduler {
	cfg.ApplyDefaults()
	log := logger.With("component", "scheduler")
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		metrics: m,
		stats:   &Stats{},
		queue:   make(chan job, cfg.QueueSize),
		retry:   newRetryManager(cfg.RetryInterval, cfg.MaxRetries, log),
		log:     log,
	}
}

// Stats returns the pipeline counters.
func (s *Scheduler) Stats() *Stats {
	return s.stats
}

// Run executes the pipeline until ctx is cancelled. Cancellation is the
// normal way to stop the daemon; Run then returns nil after the workers
// have drained their in-flight sequences.
func (s *Scheduler) Run(ctx context.Context) error {
	tip, err := s.fetcher.Tip(ctx)
	if err != nil {
		return fmt.Errorf("fetch remote tip: %w", err)
	}
	s.metrics.SetTip(tip)

	lowest, highest, haveTerminal, err := s.store.TerminalBounds(ctx)
	if err != nil {
		return err
	}

	var gaps []int64
	if haveTerminal {
		gaps, err = s.store.MissingOrNonTerminal(ctx, lowest, highest)
		if err != nil {
			return err
		}
	}

	cutoff, err := s.store.MostRecentClosedAt(ctx)
	if err != nil {
		return err
	}
	s.cutoff = cutoff

	plan := BuildPlan(tip, highest, haveTerminal, gaps, s.cfg.StartSequence, s.cfg.MinSequence)
	s.log.Info("Computed ingestion plan",
		"tip", tip,
		"gaps", len(plan.Gaps),
		"catch_up", plan.CatchUp.Count(),
		"descent", plan.Descent.Count(),
		"cutoff", cutoffString(cutoff),
	)

	g, gctx := errgroup.WithContext(ctx)

	for i := range s.cfg.NumWorkers {
		g.Go(func() error {
			return s.workerLoop(gctx, i)
		})
	}
	g.Go(func() error {
		s.produce(gctx, plan, tip)
		return nil
	})
	g.Go(func() error {
		s.retry.run(gctx, s.enqueue)
		return nil
	})
	g.Go(func() error {
		s.reclaimLoop(gctx)
		return nil
	})

	err = g.Wait()
	s.log.Info("Scheduler stopped",
		"sequences_processed", s.stats.SequencesProcessed.Load(),
		"changesets_upserted", s.stats.ChangesetsUpserted.Load(),
		"errors", s.stats.Errors.Load(),
		"retries", s.stats.Retries.Load(),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// workerLoop consumes sequence jobs until the context is cancelled.
func (s *Scheduler) workerLoop(ctx context.Context, id int) error {
	log := s.log.With("worker", id)
	log.Debug("Worker started")
	for {
		select {
		case <-ctx.Done():
			log.Debug("Worker stopping")
			return ctx.Err()
		case j := <-s.queue:
			// Once the descent has reached the cutoff, queued descending
			// jobs are stop tokens: drop them without fetching.
			if j.descending && s.descentDone.Load() {
				continue
			}
			s.handle(ctx, j)
		}
	}
}

// handle runs one job and routes its outcome to stats, metrics and the
// retry manager.
func (s *Scheduler) handle(ctx context.Context, j job) {
	res := s.processSequence(ctx, j)
	s.stats.SequencesProcessed.Add(1)
	s.stats.ChangesetsUpserted.Add(res.written)
	s.metrics.SequenceProcessed(string(res.status))
	s.metrics.ChangesetsUpserted(res.written)

	switch {
	case res.status == postgres.StatusFailed:
		s.stats.Errors.Add(1)
		if ctx.Err() != nil {
			// Shutdown race, not a real failure worth retrying.
			return
		}
		if s.retry.Schedule(j.seq, j.descending) {
			s.stats.Retries.Add(1)
			s.metrics.RetryScheduled()
		} else {
			s.log.Error("Sequence exhausted retries, leaving failed",
				"sequence", j.seq, "error", res.err)
		}
	default:
		s.retry.Succeeded(j.seq)
		if res.reachedCutoff {
			if s.descentDone.CompareAndSwap(false, true) {
				s.log.Info("Historical descent reached cutoff, draining",
					"sequence", j.seq)
			}
		}
	}
}

// produce feeds the initial plan into the queue, then polls the tip and
// enqueues newly published ranges until ctx is cancelled.
func (s *Scheduler) produce(ctx context.Context, plan Plan, tip int64) {
	for _, seq := range plan.Gaps {
		if !s.enqueue(ctx, job{seq: seq}) {
			return
		}
	}

	if r := plan.CatchUp; r != nil {
		for seq := r.From; seq <= r.To; seq++ {
			if !s.enqueue(ctx, job{seq: seq}) {
				return
			}
		}
	}

	if r := plan.Descent; r != nil {
		for seq := r.From; seq >= r.To; seq-- {
			if s.descentDone.Load() {
				s.log.Info("Stopping descent dispatch", "next_sequence", seq)
				break
			}
			if !s.enqueue(ctx, job{seq: seq, descending: true}) {
				return
			}
		}
	}

	s.pollTip(ctx, tip)
}

// pollTip watches the remote state file and enqueues [last+1, tip'] when
// the tip advances.
func (s *Scheduler) pollTip(ctx context.Context, last int64) {
	ticker := time.NewTicker(s.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tip, err := s.fetcher.Tip(ctx)
			if err != nil {
				s.log.Warn("Failed to fetch remote tip", "error", err)
				continue
			}
			s.metrics.SetTip(tip)
			if tip <= last {
				continue
			}
			s.log.Info("Remote tip advanced", "from", last, "to", tip)
			for seq := last + 1; seq <= tip; seq++ {
				if !s.enqueue(ctx, job{seq: seq}) {
					return
				}
			}
			last = tip
		}
	}
}

// reclaimLoop periodically flips stale processing rows to failed and
// hands them to the retry manager.
func (s *Scheduler) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := s.store.ReclaimStale(ctx, s.cfg.StaleProcessingGrace)
			if err != nil {
				s.log.Warn("Stale processing scan failed", "error", err)
				continue
			}
			for _, seq := range reclaimed {
				s.log.Warn("Reclaimed stale processing sequence", "sequence", seq)
				if s.retry.Schedule(seq, false) {
					s.stats.Retries.Add(1)
					s.metrics.RetryScheduled()
				}
			}
		}
	}
}

// enqueue blocks until the job is queued or ctx is cancelled.
func (s *Scheduler) enqueue(ctx context.Context, j job) bool {
	select {
	case s.queue <- j:
		return true
	case <-ctx.Done():
		return false
	}
}

func cutoffString(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.UTC().Format(time.RFC3339)
}
