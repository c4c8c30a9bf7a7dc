package templates

import (
	"context"
	"encoding/json"

	"github.com/rendis/graphrun/internal/expressions"
	"github.com/rendis/graphrun/pkg/schema"
)

const conditionConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["expression"],
  "properties": {
    "expression": { "type": "string", "minLength": 1 }
  }
}`

type conditionTemplate struct {
	cel *expressions.CELEngine
}

// NewConditionTemplate returns a template that evaluates a CEL guard
// expression over the node's inputs and the accumulated run state.
func NewConditionTemplate(engine *expressions.CELEngine) Template {
	return &conditionTemplate{cel: engine}
}

func (t *conditionTemplate) Type() string { return "condition" }

func (t *conditionTemplate) Schema() TemplateSchema {
	return TemplateSchema{
		Description:  "Evaluates a CEL expression over inputs, upstream node outputs and run variables",
		ConfigSchema: json.RawMessage(conditionConfigSchema),
	}
}

func (t *conditionTemplate) Execute(ctx context.Context, inputs, nodeData map[string]any, ec *ExecutionContext) (map[string]any, error) {
	raw, ok := Param(inputs, nodeData, ec, "expression")
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "condition node requires an 'expression'")
	}
	expression, ok := asString(raw)
	if !ok || expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "condition expression must be a non-empty string")
	}

	nodes := make(map[string]any)
	if ec != nil && ec.GetAllUpstreamData != nil {
		for id, outputs := range ec.GetAllUpstreamData() {
			nodes[id] = outputs
		}
	}

	data := map[string]any{
		"inputs": inputs,
		"nodes":  nodes,
	}
	if ec != nil {
		data["variables"] = ec.Variables
		data["workflow"] = map[string]any{
			"workflow_id": ec.WorkflowID,
			"node_id":     ec.NodeID,
		}
	}

	result, err := t.cel.Evaluate(ctx, expression, data)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"output":  result,
		"matched": truthy(result),
	}, nil
}
