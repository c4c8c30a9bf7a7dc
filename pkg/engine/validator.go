package engine

import (
	"strings"

	"github.com/rendis/graphrun/pkg/schema"
)

// Validate checks the structural invariants of a workflow graph before
// execution. Checks run in order and short-circuit on first failure:
// exactly one start node, exactly one end node, no cycle in the
// edge-induced directed graph, every node reachable from start.
// Pure: no state is touched.
func Validate(g *schema.WorkflowGraph) error {
	if g == nil || len(g.Nodes) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no nodes")
	}

	starts := g.NodesOfType(schema.NodeTypeStart)
	switch len(starts) {
	case 1:
	case 0:
		return schema.NewError(schema.ErrCodeValidation, "workflow must contain a start node")
	default:
		return schema.NewError(schema.ErrCodeValidation, "workflow must contain exactly one start node")
	}

	ends := g.NodesOfType(schema.NodeTypeEnd)
	switch len(ends) {
	case 1:
	case 0:
		return schema.NewError(schema.ErrCodeValidation, "workflow must contain an end node")
	default:
		return schema.NewError(schema.ErrCodeValidation, "workflow must contain exactly one end node")
	}

	adjacency := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	if cycleNode := findCycle(g, adjacency); cycleNode != "" {
		return schema.NewErrorf(schema.ErrCodeCycleDetected,
			"workflow contains a cycle through node %s", cycleNode)
	}

	if unreachable := findUnreachable(g, adjacency, starts[0].ID); len(unreachable) > 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"nodes unreachable from start node: %s", strings.Join(unreachable, ", "))
	}

	return nil
}

// findCycle runs a depth-first search with an explicit recursion stack;
// a back-edge to a node currently on the stack signals a cycle. Returns
// the ID of a node on the cycle, or "".
func findCycle(g *schema.WorkflowGraph, adjacency map[string][]string) string {
	visited := make(map[string]bool, len(g.Nodes))
	onStack := make(map[string]bool, len(g.Nodes))

	var visit func(id string) string
	visit = func(id string) string {
		visited[id] = true
		onStack[id] = true
		for _, next := range adjacency[id] {
			if onStack[next] {
				return next
			}
			if !visited[next] {
				if c := visit(next); c != "" {
					return c
				}
			}
		}
		onStack[id] = false
		return ""
	}

	for _, n := range g.Nodes {
		if !visited[n.ID] {
			if c := visit(n.ID); c != "" {
				return c
			}
		}
	}
	return ""
}

// findUnreachable walks forward edges breadth-first from the start node
// and returns the IDs of nodes never visited, in document order.
func findUnreachable(g *schema.WorkflowGraph, adjacency map[string][]string, startID string) []string {
	visited := map[string]bool{startID: true}
	queue := []string{startID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for _, n := range g.Nodes {
		if !visited[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}
	return unreachable
}
