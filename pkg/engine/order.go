package engine

import "github.com/rendis/graphrun/pkg/schema"

// BuildOrder produces a total execution order consistent with the
// parent relation: every node appears exactly once, after its parent.
// Nodes are placed recursively, parent first, walking the input slice
// in document order so independent branches keep a deterministic
// relative order. A node whose parent is not in the slice is treated
// as a root. Pure: input nodes are not mutated.
func BuildOrder(nodes []*schema.GraphNode) []*schema.GraphNode {
	byID := make(map[string]*schema.GraphNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	ordered := make([]*schema.GraphNode, 0, len(nodes))
	placed := make(map[string]bool, len(nodes))

	var place func(n *schema.GraphNode)
	place = func(n *schema.GraphNode) {
		if placed[n.ID] {
			return
		}
		// Mark before recursing so a malformed parent loop cannot
		// re-enter; Validate rejects cycles ahead of this point.
		placed[n.ID] = true
		if parent, ok := byID[n.ParentNode]; ok && n.ParentNode != n.ID {
			place(parent)
		}
		ordered = append(ordered, n)
	}

	for _, n := range nodes {
		place(n)
	}

	return ordered
}
