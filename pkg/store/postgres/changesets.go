package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/osmtools/changesetd/pkg/changeset"
)

// upsertColumns is the column list of the multi-row upsert statement.
// The last column (bbox) is bound through ST_GeomFromText.
var upsertColumns = []string{
	"id", "username", "uid", "created_at", "closed_at", "open",
	"num_changes", "comments_count",
	"min_lat", "min_lon", "max_lat", "max_lon",
	"tags", "comments", "bbox",
}

// maxUpsertRows keeps each statement under PostgreSQL's 65535 bind
// parameter limit (15 parameters per row).
const maxUpsertRows = 4000

// ExistingState is the subset of a stored changeset row that the
// reconciliation rules and the cutoff check need.
type ExistingState struct {
	ClosedAt      *time.Time
	Open          bool
	CommentsCount int
}

// Existing returns the reconciliation state of the stored rows among ids.
func (s *Store) Existing(ctx context.Context, ids []int64) (map[int64]ExistingState, error) {
	if len(ids) == 0 {
		return map[int64]ExistingState{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, closed_at, open, comments_count FROM changesets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing changesets: %w", err)
	}
	defer rows.Close()

	existing := make(map[int64]ExistingState)
	for rows.Next() {
		var id int64
		var st ExistingState
		if err := rows.Scan(&id, &st.ClosedAt, &st.Open, &st.CommentsCount); err != nil {
			return nil, fmt.Errorf("scan existing changeset: %w", err)
		}
		existing[id] = st
	}
	return existing, rows.Err()
}

// UpsertChangesets writes a batch of changesets in a single transaction,
// reconciling against existing rows. An update is suppressed when it would
// overwrite a closed changeset with an older open version, or when the
// stored row already has more comments than the incoming snapshot. The
// closed_at column is never regressed to NULL, open never flips back to
// true, and comments are appended only when the incoming thread is
// non-empty and strictly longer than the stored one.
//
// Returns the number of rows inserted or updated. Re-running the same
// batch writes nothing new.
func (s *Store) UpsertChangesets(ctx context.Context, batch []*changeset.Changeset) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	var written int64
	for start := 0; start < len(batch); start += maxUpsertRows {
		end := min(start+maxUpsertRows, len(batch))
		chunk := batch[start:end]

		sql := buildUpsertSQL(len(chunk))
		args, err := upsertArgs(chunk)
		if err != nil {
			return 0, err
		}

		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("upsert changesets: %w", err)
		}
		written += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit changeset batch: %w", err)
	}
	return written, nil
}

// buildUpsertSQL renders the multi-row INSERT ... ON CONFLICT statement
// for n rows.
func buildUpsertSQL(n int) string {
	perRow := len(upsertColumns)

	var b strings.Builder
	b.WriteString("INSERT INTO changesets (")
	b.WriteString(strings.Join(upsertColumns, ", "))
	b.WriteString(") VALUES ")

	for row := range n {
		if row > 0 {
			b.WriteString(", ")
		}
		base := row * perRow
		b.WriteString("(")
		for col := 1; col < perRow; col++ {
			fmt.Fprintf(&b, "$%d, ", base+col)
		}
		// bbox is the last parameter, bound as WKT.
		fmt.Fprintf(&b, "ST_GeomFromText($%d, %d))", base+perRow, changeset.SRID)
	}

	b.WriteString(`
ON CONFLICT (id) DO UPDATE SET
    username = EXCLUDED.username,
    uid = EXCLUDED.uid,
    created_at = EXCLUDED.created_at,
    closed_at = CASE
        WHEN changesets.closed_at IS NULL THEN EXCLUDED.closed_at
        WHEN EXCLUDED.closed_at IS NULL THEN changesets.closed_at
        ELSE EXCLUDED.closed_at
    END,
    open = CASE WHEN NOT EXCLUDED.open THEN FALSE ELSE changesets.open END,
    num_changes = EXCLUDED.num_changes,
    comments_count = EXCLUDED.comments_count,
    min_lat = EXCLUDED.min_lat,
    min_lon = EXCLUDED.min_lon,
    max_lat = EXCLUDED.max_lat,
    max_lon = EXCLUDED.max_lon,
    tags = EXCLUDED.tags,
    comments = CASE
        WHEN jsonb_array_length(EXCLUDED.comments) > 0
         AND changesets.comments_count < EXCLUDED.comments_count
        THEN changesets.comments || EXCLUDED.comments
        ELSE changesets.comments
    END,
    bbox = EXCLUDED.bbox
WHERE NOT (changesets.closed_at IS NOT NULL AND EXCLUDED.closed_at IS NULL)
  AND changesets.comments_count <= EXCLUDED.comments_count`)

	return b.String()
}

// upsertArgs flattens a chunk into the bind parameter list matching
// buildUpsertSQL.
func upsertArgs(chunk []*changeset.Changeset) ([]any, error) {
	args := make([]any, 0, len(chunk)*len(upsertColumns))
	for _, cs := range chunk {
		tags, err := json.Marshal(orEmptyTags(cs.Tags))
		if err != nil {
			return nil, fmt.Errorf("marshal tags for changeset %d: %w", cs.ID, err)
		}
		comments, err := json.Marshal(orEmptyComments(cs.Comments))
		if err != nil {
			return nil, fmt.Errorf("marshal comments for changeset %d: %w", cs.ID, err)
		}

		args = append(args,
			cs.ID,
			cs.Username,
			cs.UID,
			cs.CreatedAt,
			cs.ClosedAt,
			cs.Open,
			cs.NumChanges,
			cs.CommentsCount,
			cs.MinLat,
			cs.MinLon,
			cs.MaxLat,
			cs.MaxLon,
			string(tags),
			string(comments),
			cs.BBoxWKT(),
		)
	}
	return args, nil
}

func orEmptyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

func orEmptyComments(comments []changeset.Comment) []changeset.Comment {
	if comments == nil {
		return []changeset.Comment{}
	}
	return comments
}

// MostRecentClosedAt returns the newest closed_at in the store, or nil
// when the store holds no closed changesets. This is the cutoff for the
// historical descent.
func (s *Store) MostRecentClosedAt(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(closed_at) FROM changesets`).Scan(&t); err != nil {
		return nil, fmt.Errorf("query most recent closed_at: %w", err)
	}
	return t, nil
}

// CountChangesets returns the number of stored changesets.
func (s *Store) CountChangesets(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM changesets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count changesets: %w", err)
	}
	return n, nil
}

// TruncateChangesets removes every stored changeset and the sequence
// bookkeeping. Used by the archive loader when reimporting from scratch.
func (s *Store) TruncateChangesets(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE changesets, sequences`); err != nil {
		return fmt.Errorf("truncate changesets: %w", err)
	}
	s.logger.Warn("Truncated changesets and sequences tables")
	return nil
}
