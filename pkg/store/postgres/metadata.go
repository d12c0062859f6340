package postgres

import (
	"context"
	"fmt"
)

// WriteLegacyState updates the metadata(id=1) row some older consumers
// still read. The sequences table is authoritative; this row is a derived
// convenience and is only written when enabled in the configuration.
func (s *Store) WriteLegacyState(ctx context.Context, seq int64, success bool) error {
	if !s.config.WriteLegacyMetadata {
		return nil
	}

	outcome := "success"
	if !success {
		outcome = "failed"
	}
	state := fmt.Sprintf("sequence:%d:%s", seq, outcome)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO metadata (id, state, timestamp)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, timestamp = NOW()`,
		state)
	if err != nil {
		return fmt.Errorf("write legacy metadata state: %w", err)
	}
	return nil
}
