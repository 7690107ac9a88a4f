// Package steptree converts between the flat adjacency-list storage form of
// workflow steps and the ordered in-memory tree form, and between the tree
// form and the nested wire form.
package steptree

import (
	"context"
	"errors"
	"fmt"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/store"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/util"
)

var (
	// ErrIntegrity reports a cycle, self-reference, or duplicate step
	// identifier encountered while walking stored rows.
	ErrIntegrity = errors.New("step tree integrity violation")

	// ErrValidation reports a wire-form node missing required fields.
	ErrValidation = errors.New("invalid step payload")
)

// Step is one node of a workflow's step forest. Children are populated
// transiently at read time; the stored form keeps only the parent reference.
type Step struct {
	ID           string
	WorkflowID   string
	OrderNumber  int
	Description  string
	VerbID       string
	FileID       *string
	Completed    bool
	Asynchronous bool
	Expanded     bool
	Children     []*Step
}

// RowSource supplies stored step rows in sibling order.
type RowSource interface {
	TopLevelSteps(ctx context.Context, workflowID string) ([]store.StepRow, error)
	ChildSteps(ctx context.Context, stepID string) ([]store.StepRow, error)
}

func fromRow(row store.StepRow) *Step {
	return &Step{
		ID:           row.ID,
		WorkflowID:   row.WorkflowID,
		OrderNumber:  row.OrderNumber,
		Description:  row.Description,
		VerbID:       row.VerbID,
		FileID:       row.FileID,
		Completed:    row.Completed,
		Asynchronous: row.Asynchronous,
	}
}

// Reconstruct builds a workflow's ordered step forest from stored rows. The
// walk uses an explicit worklist and a visited set so a cyclic or
// self-referencing parent chain in storage surfaces as ErrIntegrity instead
// of unbounded recursion.
func Reconstruct(ctx context.Context, workflowID string, source RowSource) ([]*Step, error) {
	rootRows, err := source.TopLevelSteps(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("fetch top-level steps: %w", err)
	}

	visited := make(map[string]struct{}, len(rootRows))
	forest := make([]*Step, 0, len(rootRows))
	worklist := make([]*Step, 0, len(rootRows))
	for _, row := range rootRows {
		if _, seen := visited[row.ID]; seen {
			return nil, fmt.Errorf("%w: step %s appears twice", ErrIntegrity, row.ID)
		}
		visited[row.ID] = struct{}{}
		node := fromRow(row)
		forest = append(forest, node)
		worklist = append(worklist, node)
	}

	for len(worklist) > 0 {
		node := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		childRows, err := source.ChildSteps(ctx, node.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch child steps of %s: %w", node.ID, err)
		}
		for _, row := range childRows {
			if _, seen := visited[row.ID]; seen {
				return nil, fmt.Errorf("%w: step %s appears twice", ErrIntegrity, row.ID)
			}
			if row.WorkflowID != workflowID {
				return nil, fmt.Errorf("%w: step %s belongs to another workflow", ErrIntegrity, row.ID)
			}
			visited[row.ID] = struct{}{}
			child := fromRow(row)
			node.Children = append(node.Children, child)
			worklist = append(worklist, child)
		}
	}
	return forest, nil
}

// Flatten performs a pre-order traversal of the forest, assigning each row's
// parent reference and sibling order from the in-memory structure, and
// returns the rows plus the total node count. Nodes without an identifier
// are assigned one. A node reachable twice means the forest is not a forest
// and yields ErrIntegrity.
func Flatten(forest []*Step, workflowID string) ([]store.StepRow, int, error) {
	rows := make([]store.StepRow, 0, len(forest))
	visited := make(map[*Step]struct{})

	var walk func(node *Step, parentID *string, order int) error
	walk = func(node *Step, parentID *string, order int) error {
		if node == nil {
			return fmt.Errorf("%w: nil step", ErrIntegrity)
		}
		if _, seen := visited[node]; seen {
			return fmt.Errorf("%w: step attached twice", ErrIntegrity)
		}
		visited[node] = struct{}{}

		if node.ID == "" {
			node.ID = util.NewID("stp")
		}
		node.WorkflowID = workflowID
		node.OrderNumber = order
		rows = append(rows, store.StepRow{
			ID:           node.ID,
			WorkflowID:   workflowID,
			ParentID:     parentID,
			OrderNumber:  order,
			Description:  node.Description,
			VerbID:       node.VerbID,
			FileID:       node.FileID,
			Completed:    node.Completed,
			Asynchronous: node.Asynchronous,
		})
		for i, child := range node.Children {
			if err := walk(child, &node.ID, i+1); err != nil {
				return err
			}
		}
		return nil
	}

	for i, root := range forest {
		if err := walk(root, nil, i+1); err != nil {
			return nil, 0, err
		}
	}
	return rows, len(rows), nil
}
