// Package diagram renders workflow graphs as Mermaid flowcharts,
// optionally colored with the outcome of a run.
package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/graphrun/pkg/schema"
)

// RenderMermaid renders a workflow graph as a Mermaid flowchart.
// When results is non-nil, nodes are classed by their recorded outcome:
// succeeded, failed, or skipped (no result).
func RenderMermaid(g *schema.WorkflowGraph, results map[string]*schema.ExecutionResult) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if g.ID != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", g.ID)
	}

	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "    %s\n", nodeDef(n))
	}

	for _, e := range g.Edges {
		label := ""
		if e.SourceHandle == schema.LoopBodyHandle {
			label = "|loop body|"
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", safeID(e.Source), label, safeID(e.Target))
	}

	if results == nil {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString("    classDef succeeded fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "    class %s %s\n", safeID(n.ID), statusClass(results[n.ID]))
	}

	return b.String()
}

// nodeDef picks a Mermaid shape per node role: stadium for start/end,
// diamond for conditions, double brackets for loops, box otherwise.
func nodeDef(n *schema.GraphNode) string {
	id := safeID(n.ID)
	label := fmt.Sprintf("%s<br/>%s", n.ID, n.Type)

	switch {
	case n.Type == schema.NodeTypeStart || n.Type == schema.NodeTypeEnd:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case n.Type == "condition":
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case n.Type == "loop":
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

func statusClass(r *schema.ExecutionResult) string {
	switch {
	case r == nil:
		return "skipped"
	case r.Success:
		return "succeeded"
	default:
		return "failed"
	}
}

// safeID strips characters Mermaid treats as syntax from node IDs.
func safeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
