package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/osmtools/changesetd/pkg/changeset"
	"github.com/osmtools/changesetd/pkg/replication"
	"github.com/osmtools/changesetd/pkg/store/postgres"
)

// result is the outcome of processing one sequence.
type result struct {
	seq           int64
	status        postgres.SequenceStatus
	written       int64
	reachedCutoff bool
	err           error
}

// processSequence runs the fetch-parse-upsert of a single sequence,
// strictly sequential within one worker, and records the terminal status
// in the sequence table.
func (s *Scheduler) processSequence(ctx context.Context, j job) result {
	log := s.log.With("sequence", j.seq)

	if err := s.store.MarkSequence(ctx, j.seq, postgres.StatusProcessing, ""); err != nil {
		return result{seq: j.seq, status: postgres.StatusFailed, err: err}
	}

	start := time.Now()
	data, err := s.fetcher.Fetch(ctx, j.seq)
	if err != nil {
		if errors.Is(err, replication.ErrNotFound) {
			// No file at this sequence: a normal terminal outcome.
			log.Info("Replication file not found, marking empty")
			return s.finish(ctx, j.seq, postgres.StatusEmpty, 0, false)
		}
		s.metrics.FetchError()
		return s.fail(ctx, j.seq, err)
	}
	s.metrics.ObserveFetch(time.Since(start))

	parser := changeset.NewParser(bytes.NewReader(data), changeset.ParserOptions{})
	var parsed []*changeset.Changeset
	for {
		cs, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Stream-level parse error: the whole sequence fails.
			return s.fail(ctx, j.seq, err)
		}
		parsed = append(parsed, cs)
	}

	if len(parsed) == 0 {
		log.Info("Sequence contained no changesets")
		return s.finish(ctx, j.seq, postgres.StatusEmpty, 0, false)
	}

	ids := make([]int64, len(parsed))
	for i, cs := range parsed {
		ids[i] = cs.ID
	}
	existing, err := s.store.Existing(ctx, ids)
	if err != nil {
		return s.fail(ctx, j.seq, err)
	}

	// In descending mode, a sequence whose every changeset is already
	// stored and at or before the cutoff terminates the descent.
	reachedCutoff := j.descending && s.cutoff != nil && allOld(parsed, existing, *s.cutoff)

	var written int64
	for i := 0; i < len(parsed); i += s.cfg.BatchSize {
		end := min(i+s.cfg.BatchSize, len(parsed))
		n, err := s.store.UpsertChangesets(ctx, parsed[i:end])
		if err != nil {
			return s.fail(ctx, j.seq, err)
		}
		written += n
	}

	status := postgres.StatusEmpty
	if written > 0 {
		status = postgres.StatusBackfilled
	}
	log.Info("Sequence processed",
		"parsed", len(parsed),
		"written", written,
		"status", status,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return s.finish(ctx, j.seq, status, written, reachedCutoff)
}

// finish records a successful terminal status.
func (s *Scheduler) finish(ctx context.Context, seq int64, status postgres.SequenceStatus, written int64, reachedCutoff bool) result {
	if markErr := s.store.MarkSequence(ctx, seq, status, ""); markErr != nil {
		return result{seq: seq, status: postgres.StatusFailed, err: markErr}
	}
	if legacyErr := s.store.WriteLegacyState(ctx, seq, true); legacyErr != nil {
		s.log.Warn("Failed to write legacy metadata state", "sequence", seq, "error", legacyErr)
	}
	return result{seq: seq, status: status, written: written, reachedCutoff: reachedCutoff}
}

// fail records a failed status with its error message.
func (s *Scheduler) fail(ctx context.Context, seq int64, cause error) result {
	s.log.Error("Sequence failed", "sequence", seq, "error", cause)
	if markErr := s.store.MarkSequence(ctx, seq, postgres.StatusFailed, cause.Error()); markErr != nil {
		s.log.Error("Failed to record sequence failure", "sequence", seq, "error", markErr)
	}
	if legacyErr := s.store.WriteLegacyState(ctx, seq, false); legacyErr != nil {
		s.log.Warn("Failed to write legacy metadata state", "sequence", seq, "error", legacyErr)
	}
	return result{seq: seq, status: postgres.StatusFailed, err: cause}
}

// allOld reports whether every parsed changeset is already present in the
// store and no newer than the cutoff. A changeset's age is its closed_at
// when set, otherwise its created_at.
func allOld(parsed []*changeset.Changeset, existing map[int64]postgres.ExistingState, cutoff time.Time) bool {
	for _, cs := range parsed {
		if _, ok := existing[cs.ID]; !ok {
			return false
		}
		ts := cs.CreatedAt
		if cs.ClosedAt != nil {
			ts = *cs.ClosedAt
		}
		if ts.After(cutoff) {
			return false
		}
	}
	return true
}
