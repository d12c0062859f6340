package metrics

import (
	"testing"
	"time"
)

func TestNilIngestMetricsAreNoOps(t *testing.T) {
	// Disabled metrics must cost nothing and never panic.
	var m *IngestMetrics

	m.SequenceProcessed("backfilled")
	m.ChangesetsUpserted(100)
	m.FetchError()
	m.RetryScheduled()
	m.ObserveFetch(time.Second)
	m.SetTip(6543217)
}

func TestInitRegistryAndCollect(t *testing.T) {
	InitRegistry()
	if !IsEnabled() {
		t.Fatal("Expected metrics to be enabled after InitRegistry")
	}
	// Idempotent.
	InitRegistry()

	m := NewIngestMetrics()
	if m == nil {
		t.Fatal("Expected non-nil metrics when enabled")
	}

	m.SequenceProcessed("backfilled")
	m.SequenceProcessed("empty")
	m.ChangesetsUpserted(42)
	m.SetTip(6543217)
	m.ObserveFetch(250 * time.Millisecond)

	families, err := Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"changesetd_sequences_processed_total",
		"changesetd_changesets_upserted_total",
		"changesetd_replication_tip_sequence",
		"changesetd_fetch_duration_seconds",
	} {
		if !found[name] {
			t.Errorf("Expected metric family %s to be registered", name)
		}
	}
}
