package postgres

import (
	"context"
	"fmt"
	"time"
)

// SequenceStatus is the lifecycle state of one replication sequence.
type SequenceStatus string

const (
	StatusPending    SequenceStatus = "pending"
	StatusProcessing SequenceStatus = "processing"
	StatusBackfilled SequenceStatus = "backfilled"
	StatusEmpty      SequenceStatus = "empty"
	StatusFailed     SequenceStatus = "failed"
)

// IsTerminal reports whether the status is a successful terminal state.
func (s SequenceStatus) IsTerminal() bool {
	return s == StatusBackfilled || s == StatusEmpty
}

// MarkSequence records the status of a sequence, creating the row on
// first sight. errMsg is stored for failed sequences and cleared
// otherwise.
func (s *Store) MarkSequence(ctx context.Context, seq int64, status SequenceStatus, errMsg string) error {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sequences (sequence_number, status, error_message, ingested_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (sequence_number) DO UPDATE
		SET status = EXCLUDED.status,
		    error_message = EXCLUDED.error_message,
		    ingested_at = NOW()`,
		seq, status, msg)
	if err != nil {
		return fmt.Errorf("mark sequence %d as %s: %w", seq, status, err)
	}
	return nil
}

// TerminalBounds returns the lowest and highest sequence numbers with a
// successful terminal status (backfilled or empty). ok is false when the
// sequences table holds no terminal rows yet.
func (s *Store) TerminalBounds(ctx context.Context) (lowest, highest int64, ok bool, err error) {
	var lo, hi *int64
	err = s.pool.QueryRow(ctx, `
		SELECT MIN(sequence_number), MAX(sequence_number)
		FROM sequences
		WHERE status IN ('backfilled', 'empty')`).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, false, fmt.Errorf("query terminal sequence bounds: %w", err)
	}
	if lo == nil || hi == nil {
		return 0, 0, false, nil
	}
	return *lo, *hi, true, nil
}

// MissingOrNonTerminal returns every sequence number in [lo, hi] whose
// row is absent or not in a successful terminal state. These are the gaps
// the scheduler re-enqueues.
func (s *Store) MissingOrNonTerminal(ctx context.Context, lo, hi int64) ([]int64, error) {
	if lo > hi {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT n FROM generate_series($1::bigint, $2::bigint) AS n
		LEFT JOIN sequences ON sequences.sequence_number = n
		WHERE sequences.sequence_number IS NULL
		   OR sequences.status NOT IN ('backfilled', 'empty')
		ORDER BY n`,
		lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query sequence gaps: %w", err)
	}
	defer rows.Close()

	var gaps []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan sequence gap: %w", err)
		}
		gaps = append(gaps, n)
	}
	return gaps, rows.Err()
}

// ReclaimStale flips sequences stuck in processing for longer than grace
// to failed so they re-enter the retry path. Returns the reclaimed
// sequence numbers.
func (s *Store) ReclaimStale(ctx context.Context, grace time.Duration) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sequences
		SET status = 'failed',
		    error_message = 'reclaimed stale processing state',
		    ingested_at = NOW()
		WHERE status = 'processing'
		  AND ingested_at < NOW() - $1::interval
		RETURNING sequence_number`,
		grace.String())
	if err != nil {
		return nil, fmt.Errorf("reclaim stale sequences: %w", err)
	}
	defer rows.Close()

	var reclaimed []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan reclaimed sequence: %w", err)
		}
		reclaimed = append(reclaimed, n)
	}
	return reclaimed, rows.Err()
}

// StatusCounts returns the number of sequence rows per status.
func (s *Store) StatusCounts(ctx context.Context) (map[SequenceStatus]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM sequences GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query sequence status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[SequenceStatus]int64)
	for rows.Next() {
		var status SequenceStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// FailedSequence is one failed row surfaced for operator attention.
type FailedSequence struct {
	Sequence     int64
	ErrorMessage string
	IngestedAt   time.Time
}

// FailedSequences lists the most recently failed sequences.
func (s *Store) FailedSequences(ctx context.Context, limit int) ([]FailedSequence, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sequence_number, COALESCE(error_message, ''), ingested_at
		FROM sequences
		WHERE status = 'failed'
		ORDER BY ingested_at DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query failed sequences: %w", err)
	}
	defer rows.Close()

	var failed []FailedSequence
	for rows.Next() {
		var f FailedSequence
		if err := rows.Scan(&f.Sequence, &f.ErrorMessage, &f.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan failed sequence: %w", err)
		}
		failed = append(failed, f)
	}
	return failed, rows.Err()
}
