package ingest

import "testing"

func TestBuildPlan_EmptyStore(t *testing.T) {
	plan := BuildPlan(5000, 0, false, nil, 0, 1)

	if plan.CatchUp != nil {
		t.Error("Expected no catch-up range for an empty store")
	}
	if len(plan.Gaps) != 0 {
		t.Error("Expected no gaps for an empty store")
	}
	if plan.Descent == nil {
		t.Fatal("Expected a descent range for an empty store")
	}
	if plan.Descent.From != 5000 || plan.Descent.To != 1 {
		t.Errorf("Expected descent 5000..1, got %d..%d", plan.Descent.From, plan.Descent.To)
	}
	if plan.Descent.Count() != 5000 {
		t.Errorf("Expected descent count 5000, got %d", plan.Descent.Count())
	}
}

func TestBuildPlan_EmptyStoreWithStartSequence(t *testing.T) {
	plan := BuildPlan(5000, 0, false, nil, 100, 1)

	if plan.Descent == nil {
		t.Fatal("Expected a descent range")
	}
	// The descent starts at start_sequence when it is below the tip.
	if plan.Descent.From != 100 {
		t.Errorf("Expected descent to start at 100, got %d", plan.Descent.From)
	}
}

func TestBuildPlan_EmptyStoreWithMinSequence(t *testing.T) {
	plan := BuildPlan(5000, 0, false, nil, 0, 4000)

	if plan.Descent == nil {
		t.Fatal("Expected a descent range")
	}
	if plan.Descent.To != 4000 {
		t.Errorf("Expected descent floor 4000, got %d", plan.Descent.To)
	}
}

func TestBuildPlan_MinSequenceAboveStart(t *testing.T) {
	plan := BuildPlan(5000, 0, false, nil, 100, 4000)
	if plan.Descent != nil {
		t.Errorf("Expected no descent when the floor exceeds the start, got %+v", plan.Descent)
	}
}

func TestBuildPlan_CatchUp(t *testing.T) {
	plan := BuildPlan(5000, 4990, true, nil, 0, 1)

	if plan.Descent != nil {
		t.Error("Expected no descent when terminal rows exist")
	}
	if plan.CatchUp == nil {
		t.Fatal("Expected a catch-up range")
	}
	if plan.CatchUp.From != 4991 || plan.CatchUp.To != 5000 {
		t.Errorf("Expected catch-up 4991..5000, got %d..%d", plan.CatchUp.From, plan.CatchUp.To)
	}
}

func TestBuildPlan_UpToDate(t *testing.T) {
	plan := BuildPlan(5000, 5000, true, nil, 0, 1)
	if plan.CatchUp != nil {
		t.Errorf("Expected no catch-up when already at tip, got %+v", plan.CatchUp)
	}
}

func TestBuildPlan_GapsCarriedThrough(t *testing.T) {
	gaps := []int64{4301, 4302, 4720}
	plan := BuildPlan(5000, 5000, true, gaps, 0, 1)

	if len(plan.Gaps) != 3 {
		t.Fatalf("Expected 3 gaps, got %d", len(plan.Gaps))
	}
	if plan.Gaps[2] != 4720 {
		t.Errorf("Unexpected gap list: %v", plan.Gaps)
	}
}
