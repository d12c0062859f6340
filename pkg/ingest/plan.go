package ingest

// SeqRange is an inclusive range of sequence numbers. For an ascending
// range From <= To; for the descent From >= To.
type SeqRange struct {
	From int64
	To   int64
}

// Count returns the number of sequences in the range.
func (r *SeqRange) Count() int64 {
	if r == nil {
		return 0
	}
	if r.From <= r.To {
		return r.To - r.From + 1
	}
	return r.From - r.To + 1
}

// Plan is the scheduler's initial work, computed from the remote tip and
// the local sequence table.
type Plan struct {
	// Gaps are sequences inside the already-processed range whose rows
	// are missing or non-terminal. Dispatched first.
	Gaps []int64

	// CatchUp is the ascending range from the highest locally terminated
	// sequence up to the tip, when the store is behind.
	CatchUp *SeqRange

	// Descent is the descending range for the historical backfill of an
	// empty store, terminated early by the cutoff rule.
	Descent *SeqRange
}

// BuildPlan computes the initial enqueue.
//
// With terminal rows present: catch up [highest+1, tip] when behind, plus
// the gap list. With an empty sequence table: descend [start, minSeq]
// where start is the tip, optionally capped by startSequence.
func BuildPlan(tip, highest int64, haveTerminal bool, gaps []int64, startSequence, minSequence int64) Plan {
	if minSequence <= 0 {
		minSequence = 1
	}

	var plan Plan
	if !haveTerminal {
		start := tip
		if startSequence > 0 && startSequence < start {
			start = startSequence
		}
		if start >= minSequence {
			plan.Descent = &SeqRange{From: start, To: minSequence}
		}
		return plan
	}

	plan.Gaps = gaps
	if highest < tip {
		plan.CatchUp = &SeqRange{From: highest + 1, To: tip}
	}
	return plan
}
