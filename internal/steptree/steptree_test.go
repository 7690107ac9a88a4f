package steptree

import (
	"context"
	"errors"
	"testing"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/store"
)

type fakeRowSource struct {
	topLevel map[string][]store.StepRow
	children map[string][]store.StepRow
}

func (f *fakeRowSource) TopLevelSteps(_ context.Context, workflowID string) ([]store.StepRow, error) {
	return f.topLevel[workflowID], nil
}

func (f *fakeRowSource) ChildSteps(_ context.Context, stepID string) ([]store.StepRow, error) {
	return f.children[stepID], nil
}

func sourceFromRows(workflowID string, rows []store.StepRow) *fakeRowSource {
	source := &fakeRowSource{
		topLevel: map[string][]store.StepRow{},
		children: map[string][]store.StepRow{},
	}
	for _, row := range rows {
		if row.ParentID == nil {
			source.topLevel[workflowID] = append(source.topLevel[workflowID], row)
		} else {
			source.children[*row.ParentID] = append(source.children[*row.ParentID], row)
		}
	}
	return source
}

func strptr(s string) *string { return &s }

func sampleForest() []*Step {
	return []*Step{
		{
			ID: "stp_a", VerbID: "vrb_build", Description: "assemble chassis",
			FileID: strptr("fil_1"), Completed: true,
			Children: []*Step{
				{ID: "stp_b", VerbID: "vrb_review", Description: "inspect welds", FileID: strptr("fil_2")},
				{ID: "stp_c", VerbID: "vrb_sign", Description: "sign off", FileID: strptr("fil_3"), Completed: true, Asynchronous: true},
			},
		},
		{ID: "stp_d", VerbID: "vrb_deliver", Description: "ship", FileID: strptr("fil_4")},
	}
}

func TestFlattenReconstructRoundTrip(t *testing.T) {
	forest := sampleForest()
	rows, count, err := Flatten(forest, "wfl_1")
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4", count)
	}

	rebuilt, err := Reconstruct(context.Background(), "wfl_1", sourceFromRows("wfl_1", rows))
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	assertForestEqual(t, forest, rebuilt)
}

func assertForestEqual(t *testing.T, want, got []*Step) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("forest width = %d, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if g.ID != w.ID || g.VerbID != w.VerbID || g.Description != w.Description ||
			g.Completed != w.Completed || g.Asynchronous != w.Asynchronous {
			t.Fatalf("node %s: got %+v, want %+v", w.ID, g, w)
		}
		if (w.FileID == nil) != (g.FileID == nil) || (w.FileID != nil && *w.FileID != *g.FileID) {
			t.Fatalf("node %s: fileID mismatch", w.ID)
		}
		assertForestEqual(t, w.Children, g.Children)
	}
}

func TestReconstructSelfParentFails(t *testing.T) {
	source := &fakeRowSource{
		topLevel: map[string][]store.StepRow{
			"wfl_1": {{ID: "stp_x", WorkflowID: "wfl_1", OrderNumber: 1}},
		},
		children: map[string][]store.StepRow{
			"stp_x": {{ID: "stp_x", WorkflowID: "wfl_1", ParentID: strptr("stp_x"), OrderNumber: 1}},
		},
	}
	_, err := Reconstruct(context.Background(), "wfl_1", source)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestReconstructCycleFails(t *testing.T) {
	source := &fakeRowSource{
		topLevel: map[string][]store.StepRow{
			"wfl_1": {{ID: "stp_a", WorkflowID: "wfl_1", OrderNumber: 1}},
		},
		children: map[string][]store.StepRow{
			"stp_a": {{ID: "stp_b", WorkflowID: "wfl_1", ParentID: strptr("stp_a"), OrderNumber: 1}},
			"stp_b": {{ID: "stp_a", WorkflowID: "wfl_1", ParentID: strptr("stp_b"), OrderNumber: 1}},
		},
	}
	_, err := Reconstruct(context.Background(), "wfl_1", source)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestReconstructRejectsForeignWorkflowChild(t *testing.T) {
	source := &fakeRowSource{
		topLevel: map[string][]store.StepRow{
			"wfl_1": {{ID: "stp_a", WorkflowID: "wfl_1", OrderNumber: 1}},
		},
		children: map[string][]store.StepRow{
			"stp_a": {{ID: "stp_b", WorkflowID: "wfl_2", ParentID: strptr("stp_a"), OrderNumber: 1}},
		},
	}
	_, err := Reconstruct(context.Background(), "wfl_1", source)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestFlattenAssignsParentAndOrder(t *testing.T) {
	forest := sampleForest()
	rows, _, err := Flatten(forest, "wfl_1")
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	byID := map[string]store.StepRow{}
	for _, row := range rows {
		byID[row.ID] = row
	}
	if byID["stp_a"].ParentID != nil || byID["stp_a"].OrderNumber != 1 {
		t.Fatalf("root row wrong: %+v", byID["stp_a"])
	}
	if byID["stp_d"].OrderNumber != 2 {
		t.Fatalf("second root order = %d, want 2", byID["stp_d"].OrderNumber)
	}
	if byID["stp_c"].ParentID == nil || *byID["stp_c"].ParentID != "stp_a" || byID["stp_c"].OrderNumber != 2 {
		t.Fatalf("child row wrong: %+v", byID["stp_c"])
	}
	for _, row := range rows {
		if row.WorkflowID != "wfl_1" {
			t.Fatalf("row %s workflow = %q", row.ID, row.WorkflowID)
		}
	}
}

func TestFlattenSharedNodeFails(t *testing.T) {
	shared := &Step{ID: "stp_s", VerbID: "vrb_review"}
	forest := []*Step{
		{ID: "stp_a", VerbID: "vrb_build", Children: []*Step{shared}},
		{ID: "stp_b", VerbID: "vrb_build", Children: []*Step{shared}},
	}
	_, _, err := Flatten(forest, "wfl_1")
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}
