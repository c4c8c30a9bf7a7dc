package templates

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rendis/graphrun/internal/expressions"
	"github.com/rendis/graphrun/pkg/schema"
)

// DefaultMaxIterations bounds loop execution when the node does not
// declare its own maxIterations.
const DefaultMaxIterations = 100

const loopConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "loopType": { "type": "string", "enum": ["map", "filter", "forEach"] },
    "type": { "type": "string", "enum": ["map", "filter", "forEach"] },
    "maxIterations": { "type": "integer", "minimum": 1 },
    "breakOnError": { "type": "boolean" },
    "expression": { "type": "string" }
  }
}`

type loopTemplate struct {
	expr *expressions.ExprEngine
}

// NewLoopTemplate returns the loop-orchestration template. For each
// element of its input array it either delegates to the connected
// loop-body node (via the context's sub-executor) or, when no body is
// connected, evaluates a per-element fallback expression over
// element/index/array.
func NewLoopTemplate(engine *expressions.ExprEngine) Template {
	return &loopTemplate{expr: engine}
}

func (t *loopTemplate) Type() string { return "loop" }

func (t *loopTemplate) Schema() TemplateSchema {
	return TemplateSchema{
		Description:  "Iterates an input array: map, filter or forEach over a connected body node or a fallback expression",
		ConfigSchema: json.RawMessage(loopConfigSchema),
	}
}

func (t *loopTemplate) Execute(ctx context.Context, inputs, nodeData map[string]any, ec *ExecutionContext) (map[string]any, error) {
	array, ok := resolveArray(inputs)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "loop node requires an array input")
	}

	loopType, _ := asString(nodeData["loopType"])
	if loopType == "" {
		loopType, _ = asString(nodeData["type"])
	}
	if loopType == "" {
		loopType = "map"
	}
	switch loopType {
	case "map", "filter", "forEach":
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown loop type %q", loopType)
	}

	maxIterations := DefaultMaxIterations
	if n, ok := asInt(nodeData["maxIterations"]); ok && n > 0 {
		maxIterations = n
	}
	breakOnError := true
	if b, ok := asBool(nodeData["breakOnError"]); ok {
		breakOnError = b
	}
	expression, _ := asString(nodeData["expression"])

	var body *schema.GraphNode
	if ec != nil && ec.GetLoopBodyNode != nil {
		body, _ = ec.GetLoopBodyNode(ec.NodeID)
	}
	if body == nil && expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"loop node has neither a connected body node nor a fallback expression")
	}

	if len(array) > maxIterations {
		ec.Log().WarnContext(ctx, "loop input truncated to maxIterations",
			"max_iterations", maxIterations, "array_length", len(array))
		array = array[:maxIterations]
	}

	results := make([]any, 0, len(array))
	var errs []string

	for i, element := range array {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var out any
		var err error
		if body != nil && ec.ExecuteLoopBody != nil {
			out, err = ec.ExecuteLoopBody(ctx, ec.NodeID, body, element, i, array)
		} else {
			env := map[string]any{
				"element": element,
				"index":   i,
				"array":   array,
				"inputs":  inputs,
			}
			if ec != nil {
				env["variables"] = ec.Variables
			}
			out, err = t.expr.Evaluate(ctx, expression, env)
		}

		if err != nil {
			if breakOnError {
				return nil, schema.NewErrorf(schema.ErrCodeExecution,
					"loop iteration %d failed: %s", i, err.Error()).WithCause(err)
			}
			errs = append(errs, err.Error())
			continue
		}

		switch loopType {
		case "map":
			results = append(results, out)
		case "filter":
			if truthy(out) {
				results = append(results, element)
			}
		case "forEach":
			// Side effects only; the original elements pass through.
			results = append(results, element)
		}
	}

	outputs := map[string]any{
		"output": results,
		"count":  len(results),
	}
	if len(errs) > 0 {
		outputs["errors"] = errs
	}
	return outputs, nil
}

// loopArrayAliases are checked first, most specific first.
var loopArrayAliases = []string{"inputArray", "array", "input"}

// resolveArray locates the loop's input array: the resolver's aliases
// first, then any other input key holding an array (sorted for
// determinism), so unbound upstream fields like {items: [...]} still
// feed the loop.
func resolveArray(inputs map[string]any) ([]any, bool) {
	for _, key := range loopArrayAliases {
		if arr, ok := asSlice(inputs[key]); ok {
			return arr, true
		}
	}

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if arr, ok := asSlice(inputs[k]); ok {
			return arr, true
		}
	}
	return nil, false
}
