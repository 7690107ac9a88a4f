package steptree

import (
	"math"
	"testing"
)

func TestProgressCountsEveryNode(t *testing.T) {
	forest := []*Step{
		{
			ID: "stp_a", OrderNumber: 1, Completed: true,
			Children: []*Step{
				{ID: "stp_b", OrderNumber: 1, Completed: false},
				{ID: "stp_c", OrderNumber: 2, Completed: true},
			},
		},
	}
	total, completed := Progress(forest)
	if total != 3 || completed != 2 {
		t.Fatalf("got total=%d completed=%d, want 3/2", total, completed)
	}
	if pct := PercentComplete(forest); math.Abs(pct-2.0/3.0) > 1e-9 {
		t.Fatalf("percent = %f, want 0.667", pct)
	}
}

func TestProgressCompletedNeverExceedsTotal(t *testing.T) {
	forest := sampleForest()
	total, completed := Progress(forest)
	if completed > total {
		t.Fatalf("completed %d > total %d", completed, total)
	}
}

func TestEmptyForestIsFullyComplete(t *testing.T) {
	if pct := PercentComplete(nil); pct != 1.0 {
		t.Fatalf("percent = %f, want 1.0", pct)
	}
}
