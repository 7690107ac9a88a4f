package steptree

// Progress walks the forest and counts every node, completed or not. Branch
// nodes count the same as leaves.
func Progress(forest []*Step) (total, completed int) {
	worklist := make([]*Step, len(forest))
	copy(worklist, forest)
	for len(worklist) > 0 {
		node := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		total++
		if node.Completed {
			completed++
		}
		worklist = append(worklist, node.Children...)
	}
	return total, completed
}

// PercentComplete returns the completed fraction of the forest in [0, 1].
// An empty forest reads as fully complete.
func PercentComplete(forest []*Step) float64 {
	total, completed := Progress(forest)
	if total == 0 {
		return 1.0
	}
	return float64(completed) / float64(total)
}
