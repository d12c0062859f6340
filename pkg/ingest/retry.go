package ingest

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// retryItem is one pending retry, ordered by its due time.
type retryItem struct {
	at         time.Time
	seq        int64
	descending bool
}

type retryHeap []retryItem

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h retryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)        { *h = append(*h, x.(retryItem)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// retryManager requeues failed sequences with bounded attempts. Sequences
// that exhaust their retries stay failed for operator attention.
type retryManager struct {
	mu       sync.Mutex
	pending  retryHeap
	attempts map[int64]int

	interval time.Duration
	max      int
	log      *slog.Logger
}

func newRetryManager(interval time.Duration, max int, log *slog.Logger) *retryManager {
	rm := &retryManager{
		attempts: make(map[int64]int),
		interval: interval,
		max:      max,
		log:      log,
	}
	heap.Init(&rm.pending)
	return rm
}

// Schedule enqueues a retry for seq. Returns false when the sequence has
// exhausted its attempts and must rest in failed.
func (r *retryManager) Schedule(seq int64, descending bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempts[seq] >= r.max {
		return false
	}
	r.attempts[seq]++
	heap.Push(&r.pending, retryItem{
		at:         time.Now().Add(r.interval),
		seq:        seq,
		descending: descending,
	})
	return true
}

// Succeeded clears the attempt counter after a sequence terminates
// successfully.
func (r *retryManager) Succeeded(seq int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, seq)
}

// Attempts returns how many retries have been scheduled for seq.
func (r *retryManager) Attempts(seq int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[seq]
}

// due pops every item whose retry time has passed.
func (r *retryManager) due(now time.Time) []retryItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []retryItem
	for r.pending.Len() > 0 && !r.pending[0].at.After(now) {
		items = append(items, heap.Pop(&r.pending).(retryItem))
	}
	return items
}

// run drains due retries back into the scheduler queue until ctx is
// cancelled. On shutdown pending retries are dropped silently; the
// sequence table still records them as failed.
func (r *retryManager) run(ctx context.Context, enqueue func(context.Context, job) bool) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, item := range r.due(now) {
				r.log.Info("Requeuing failed sequence",
					"sequence", item.seq, "attempt", r.Attempts(item.seq))
				if !enqueue(ctx, job{seq: item.seq, descending: item.descending}) {
					return
				}
			}
		}
	}
}
