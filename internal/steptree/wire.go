package steptree

import "fmt"

// WireStep is the nested transport form of a step. Pointer fields
// distinguish "absent" from zero values at decode time; children being nil
// or empty marks a leaf.
type WireStep struct {
	Title        *string    `json:"title,omitempty"`
	Subtitle     string     `json:"subtitle,omitempty"`
	UUID         string     `json:"uuid,omitempty"`
	FileID       *string    `json:"fileID,omitempty"`
	Asynchronous *bool      `json:"asynchronous,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	Expanded     bool       `json:"expanded,omitempty"`
	Children     []WireStep `json:"children,omitempty"`
}

// WireEnvelope carries a workflow's wire-form step forest. The workflow
// identifier lives only on the envelope; decoding stamps it onto every node.
type WireEnvelope struct {
	WorkflowID string     `json:"workflowID"`
	Steps      []WireStep `json:"steps"`
}

// DecodeForest converts wire-form steps into an in-memory forest, assigning
// the enclosing workflow identifier at every depth. Leaves require title,
// fileID, asynchronous, and completed; internal nodes require only title.
// A missing required field is ErrValidation.
func DecodeForest(env WireEnvelope) ([]*Step, error) {
	forest := make([]*Step, 0, len(env.Steps))
	for i, wireStep := range env.Steps {
		node, err := decodeNode(wireStep, env.WorkflowID, fmt.Sprintf("steps[%d]", i))
		if err != nil {
			return nil, err
		}
		forest = append(forest, node)
	}
	return forest, nil
}

func decodeNode(wireStep WireStep, workflowID, path string) (*Step, error) {
	if wireStep.Title == nil || *wireStep.Title == "" {
		return nil, fmt.Errorf("%w: %s missing title", ErrValidation, path)
	}
	node := &Step{
		ID:          wireStep.UUID,
		WorkflowID:  workflowID,
		VerbID:      *wireStep.Title,
		Description: wireStep.Subtitle,
		FileID:      wireStep.FileID,
		Expanded:    wireStep.Expanded,
	}
	if wireStep.Asynchronous != nil {
		node.Asynchronous = *wireStep.Asynchronous
	}
	if wireStep.Completed != nil {
		node.Completed = *wireStep.Completed
	}

	if len(wireStep.Children) == 0 {
		// Leaf: the actionable fields are mandatory here, not at
		// persistence time.
		switch {
		case wireStep.FileID == nil:
			return nil, fmt.Errorf("%w: %s missing fileID", ErrValidation, path)
		case wireStep.Asynchronous == nil:
			return nil, fmt.Errorf("%w: %s missing asynchronous", ErrValidation, path)
		case wireStep.Completed == nil:
			return nil, fmt.Errorf("%w: %s missing completed", ErrValidation, path)
		}
		return node, nil
	}

	for i, child := range wireStep.Children {
		childNode, err := decodeNode(child, workflowID, fmt.Sprintf("%s.children[%d]", path, i))
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}

// EncodeForest converts an in-memory forest back into wire form, preserving
// sibling order.
func EncodeForest(forest []*Step) []WireStep {
	wireSteps := make([]WireStep, 0, len(forest))
	for _, node := range forest {
		wireSteps = append(wireSteps, encodeNode(node))
	}
	return wireSteps
}

func encodeNode(node *Step) WireStep {
	verbID := node.VerbID
	asynchronous := node.Asynchronous
	completed := node.Completed
	wireStep := WireStep{
		Title:        &verbID,
		Subtitle:     node.Description,
		UUID:         node.ID,
		FileID:       node.FileID,
		Asynchronous: &asynchronous,
		Completed:    &completed,
		Expanded:     node.Expanded,
	}
	for _, child := range node.Children {
		wireStep.Children = append(wireStep.Children, encodeNode(child))
	}
	return wireStep
}
