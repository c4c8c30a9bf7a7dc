package engine

import (
	"context"

	"github.com/rendis/graphrun/internal/logging"
	"github.com/rendis/graphrun/pkg/schema"
)

// resolveInputs builds the input map a node's template will receive.
// Sources, highest precedence first:
//
//  1. no parent: empty map (root nodes feed themselves from node data)
//  2. attached loop context: the current element, its index and the
//     full array, with "input" aliased to the element
//  3. missing or failed parent result: empty map, with a warning
//  4. declared parameter bindings against the parent's outputs
//  5. implicit pass-through of the parent's outputs
//
// The loop-context check runs before the parent-result check: a loop
// body executes while its parent loop node is still in flight, so no
// parent result exists yet.
func (e *Executor) resolveInputs(ctx context.Context, node *schema.GraphNode) map[string]any {
	if node.IsLoopBodyNode && node.Loop != nil {
		lc := node.Loop
		return map[string]any{
			"element":    lc.Element,
			"index":      lc.Index,
			"array":      lc.Array,
			"loopNodeId": lc.LoopNodeID,
			"input":      lc.Element,
			"inputArray": []any{lc.Element},
		}
	}

	if node.ParentNode == "" {
		return map[string]any{}
	}

	parent, ok := e.results[node.ParentNode]
	if !ok || !parent.Success {
		logging.LogWith(ctx, e.logger).Warn("parent output unavailable, resolving empty inputs",
			"node_id", node.ID, "parent_node", node.ParentNode)
		return map[string]any{}
	}

	if len(node.ParameterSelections) > 0 {
		inputs := make(map[string]any, len(node.ParameterSelections))
		for name, sel := range node.ParameterSelections {
			if sel.Source != schema.BindingUpstream {
				continue // static bindings resolve inside the template
			}
			if sel.SourceNodeID != node.ParentNode {
				continue
			}
			key := sel.SourceOutputKey
			if key == "" {
				key = "output"
			}
			if v, ok := parent.Outputs[key]; ok {
				inputs[name] = v
			}
		}
		return inputs
	}

	inputs := make(map[string]any, len(parent.Outputs)+2)
	if v, ok := parent.Outputs["output"]; ok {
		inputs["input"] = v
		// The parent's primary output verbatim: an array stays an
		// array, anything else is not wrapped.
		inputs["inputArray"] = v
	}
	for k, v := range parent.Outputs {
		if k == "output" {
			continue
		}
		inputs[k] = v
	}
	return inputs
}
