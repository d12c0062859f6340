package ingest

import (
	"log/slog"
	"testing"
	"time"
)

func newTestRetryManager(max int) *retryManager {
	return newRetryManager(time.Millisecond, max, slog.Default())
}

func TestRetryManager_ScheduleBounded(t *testing.T) {
	rm := newTestRetryManager(3)

	for i := 1; i <= 3; i++ {
		if !rm.Schedule(42, false) {
			t.Fatalf("Expected attempt %d to be scheduled", i)
		}
	}
	if rm.Schedule(42, false) {
		t.Error("Expected fourth attempt to be rejected")
	}
	if got := rm.Attempts(42); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestRetryManager_SucceededResetsAttempts(t *testing.T) {
	rm := newTestRetryManager(1)

	if !rm.Schedule(7, false) {
		t.Fatal("Expected first schedule to succeed")
	}
	if rm.Schedule(7, false) {
		t.Fatal("Expected second schedule to be rejected")
	}

	rm.Succeeded(7)
	if !rm.Schedule(7, false) {
		t.Error("Expected schedule to succeed again after success reset")
	}
}

func TestRetryManager_DueOrdering(t *testing.T) {
	rm := newTestRetryManager(5)
	rm.Schedule(3, false)
	rm.Schedule(1, true)
	rm.Schedule(2, false)

	// Nothing is due before the interval elapses.
	if items := rm.due(time.Now().Add(-time.Hour)); len(items) != 0 {
		t.Errorf("Expected nothing due in the past, got %d items", len(items))
	}

	items := rm.due(time.Now().Add(time.Hour))
	if len(items) != 3 {
		t.Fatalf("Expected 3 due items, got %d", len(items))
	}
	// Popped in scheduling order (identical intervals).
	if items[0].seq != 3 || items[1].seq != 1 || items[2].seq != 2 {
		t.Errorf("Unexpected due order: %v", items)
	}
	if !items[1].descending {
		t.Error("Expected descending flag to be preserved")
	}

	// The heap is drained.
	if items := rm.due(time.Now().Add(time.Hour)); len(items) != 0 {
		t.Errorf("Expected heap to be drained, got %d items", len(items))
	}
}
