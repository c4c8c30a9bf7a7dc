// Package schema defines the workflow graph data model shared by the
// engine, the template registry, and callers that materialize graphs
// from an external editor or loader.
package schema

// Well-known node types. Every executable graph has exactly one of each.
const (
	NodeTypeStart = "start"
	NodeTypeEnd   = "end"
)

// LoopBodyHandle marks an edge as a loop-body designation: the edge's
// target becomes the loop-iteration body of the edge's source.
const LoopBodyHandle = "loop-body"

// WorkflowDocument is the raw JSON-serializable workflow format produced
// by an external editor or loader: a flat node list plus edges.
type WorkflowDocument struct {
	ID    string       `json:"id,omitempty"`
	Name  string       `json:"name,omitempty"`
	Nodes []*GraphNode `json:"nodes"`
	Edges []*Edge      `json:"edges"`
}

// GraphNode is a unit of computation in the workflow graph.
//
// ParentNode, LoopBodyNode and IsLoopBodyNode are derived from edges by
// BuildGraph; documents may also carry them pre-resolved. Loop is
// transient iteration state, set only on per-iteration copies made by the
// loop sub-executor and never serialized.
type GraphNode struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`

	ParentNode     string `json:"parent_node,omitempty"`
	LoopBodyNode   string `json:"loop_body_node,omitempty"`
	IsLoopBodyNode bool   `json:"is_loop_body_node,omitempty"`

	ParameterSelections map[string]ParameterSelection `json:"parameter_selections,omitempty"`

	Loop *LoopContext `json:"-"`
}

// Edge connects two node handles. Edges drive structural validation and
// the ParentNode/LoopBodyNode derivation; runtime data propagation reads
// ParentNode directly.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"source_handle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// Binding sources for ParameterSelection.
const (
	BindingStatic   = "static"
	BindingUpstream = "upstream"
)

// ParameterSelection binds one logical template parameter to either a
// static value or an output key of the node's upstream parent.
type ParameterSelection struct {
	Source          string `json:"source"` // "static" | "upstream"
	StaticValue     any    `json:"static_value,omitempty"`
	SourceNodeID    string `json:"source_node_id,omitempty"`
	SourceOutputKey string `json:"source_output_key,omitempty"`
}

// LoopContext is the per-iteration context injected into a loop-body
// node instead of its ordinary upstream data. Created fresh per
// iteration and discarded once the iteration's result is recorded.
type LoopContext struct {
	Element    any    `json:"element"`
	Index      int    `json:"index"`
	Array      []any  `json:"array"`
	LoopNodeID string `json:"loop_node_id"`
}

// WorkflowGraph is the resolved, immutable-for-the-run graph the engine
// executes. Construct it with BuildGraph.
type WorkflowGraph struct {
	ID    string
	Nodes []*GraphNode
	Edges []*Edge

	byID map[string]*GraphNode
}

// Node returns the node with the given ID, if present.
func (g *WorkflowGraph) Node(id string) (*GraphNode, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// NodesOfType returns all nodes of the given type, in document order.
func (g *WorkflowGraph) NodesOfType(nodeType string) []*GraphNode {
	var out []*GraphNode
	for _, n := range g.Nodes {
		if n.Type == nodeType {
			out = append(out, n)
		}
	}
	return out
}

// BuildGraph resolves a raw document into an executable WorkflowGraph.
//
// It indexes nodes, rejects duplicates and dangling edge endpoints, and
// derives the single-parent data-flow pointers: for every edge the target
// node's ParentNode becomes the edge source; an edge whose source handle
// is LoopBodyHandle additionally designates the target as the source's
// loop-iteration body. Multi-parent fan-in is rejected because the
// engine's data-flow model is single-parent.
func BuildGraph(doc *WorkflowDocument) (*WorkflowGraph, error) {
	if doc == nil {
		return nil, NewError(ErrCodeValidation, "workflow document is nil")
	}
	if len(doc.Nodes) == 0 {
		return nil, NewError(ErrCodeValidation, "workflow has no nodes")
	}

	g := &WorkflowGraph{
		ID:    doc.ID,
		Nodes: doc.Nodes,
		Edges: doc.Edges,
		byID:  make(map[string]*GraphNode, len(doc.Nodes)),
	}

	for i, n := range doc.Nodes {
		if n.ID == "" {
			return nil, NewErrorf(ErrCodeValidation, "node at index %d has empty ID", i)
		}
		if n.Type == "" {
			return nil, NewErrorf(ErrCodeValidation, "node %s has empty type", n.ID)
		}
		if _, exists := g.byID[n.ID]; exists {
			return nil, NewErrorf(ErrCodeValidation, "duplicate node ID: %s", n.ID)
		}
		g.byID[n.ID] = n
	}

	for _, e := range doc.Edges {
		src, ok := g.byID[e.Source]
		if !ok {
			return nil, NewErrorf(ErrCodeValidation, "edge %s references non-existent source node: %s", e.ID, e.Source)
		}
		tgt, ok := g.byID[e.Target]
		if !ok {
			return nil, NewErrorf(ErrCodeValidation, "edge %s references non-existent target node: %s", e.ID, e.Target)
		}
		if e.Source == e.Target {
			return nil, NewErrorf(ErrCodeCycleDetected, "edge %s connects node %s to itself", e.ID, e.Source)
		}

		if tgt.ParentNode != "" && tgt.ParentNode != e.Source {
			return nil, NewErrorf(ErrCodeValidation,
				"node %s has multiple parents (%s and %s); the data-flow model is single-parent",
				tgt.ID, tgt.ParentNode, e.Source)
		}
		tgt.ParentNode = e.Source

		if e.SourceHandle == LoopBodyHandle {
			if src.LoopBodyNode != "" && src.LoopBodyNode != tgt.ID {
				return nil, NewErrorf(ErrCodeValidation,
					"node %s designates multiple loop bodies (%s and %s)",
					src.ID, src.LoopBodyNode, tgt.ID)
			}
			src.LoopBodyNode = tgt.ID
			tgt.IsLoopBodyNode = true
		}
	}

	return g, nil
}
