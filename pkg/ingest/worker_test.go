package ingest

import (
	"testing"
	"time"

	"github.com/osmtools/changesetd/pkg/changeset"
	"github.com/osmtools/changesetd/pkg/store/postgres"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func TestAllOld(t *testing.T) {
	cutoff := ts("2024-06-01T00:00:00Z")

	tests := []struct {
		name     string
		parsed   []*changeset.Changeset
		existing map[int64]postgres.ExistingState
		want     bool
	}{
		{
			name: "all present and old",
			parsed: []*changeset.Changeset{
				{ID: 1, ClosedAt: tsp("2024-05-01T00:00:00Z")},
				{ID: 2, ClosedAt: tsp("2024-05-20T00:00:00Z")},
			},
			existing: map[int64]postgres.ExistingState{1: {}, 2: {}},
			want:     true,
		},
		{
			name: "one changeset missing from store",
			parsed: []*changeset.Changeset{
				{ID: 1, ClosedAt: tsp("2024-05-01T00:00:00Z")},
				{ID: 3, ClosedAt: tsp("2024-05-01T00:00:00Z")},
			},
			existing: map[int64]postgres.ExistingState{1: {}},
			want:     false,
		},
		{
			name: "one changeset newer than cutoff",
			parsed: []*changeset.Changeset{
				{ID: 1, ClosedAt: tsp("2024-05-01T00:00:00Z")},
				{ID: 2, ClosedAt: tsp("2024-07-01T00:00:00Z")},
			},
			existing: map[int64]postgres.ExistingState{1: {}, 2: {}},
			want:     false,
		},
		{
			name: "open changeset falls back to created_at",
			parsed: []*changeset.Changeset{
				{ID: 1, CreatedAt: ts("2024-05-01T00:00:00Z")},
			},
			existing: map[int64]postgres.ExistingState{1: {}},
			want:     true,
		},
		{
			name: "open changeset created after cutoff",
			parsed: []*changeset.Changeset{
				{ID: 1, CreatedAt: ts("2024-07-01T00:00:00Z")},
			},
			existing: map[int64]postgres.ExistingState{1: {}},
			want:     false,
		},
		{
			name: "exactly at cutoff counts as old",
			parsed: []*changeset.Changeset{
				{ID: 1, ClosedAt: tsp("2024-06-01T00:00:00Z")},
			},
			existing: map[int64]postgres.ExistingState{1: {}},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := allOld(tt.parsed, tt.existing, cutoff); got != tt.want {
				t.Errorf("allOld() = %v, want %v", got, tt.want)
			}
		})
	}
}
