package templates

import (
	"context"
	"encoding/json"

	"github.com/rendis/graphrun/internal/expressions"
	"github.com/rendis/graphrun/pkg/schema"
)

const transformConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["query"],
  "properties": {
    "query": { "type": "string", "minLength": 1 }
  }
}`

type transformTemplate struct {
	jq *expressions.GoJQEngine
}

// NewTransformTemplate returns a template that reshapes its resolved
// input map with a jq program.
func NewTransformTemplate(engine *expressions.GoJQEngine) Template {
	return &transformTemplate{jq: engine}
}

func (t *transformTemplate) Type() string { return "transform" }

func (t *transformTemplate) Schema() TemplateSchema {
	return TemplateSchema{
		Description:  "Reshapes upstream data with a jq program; the resolved input map is the jq input object",
		ConfigSchema: json.RawMessage(transformConfigSchema),
	}
}

func (t *transformTemplate) Execute(ctx context.Context, inputs, nodeData map[string]any, ec *ExecutionContext) (map[string]any, error) {
	raw, ok := Param(inputs, nodeData, ec, "query")
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "transform node requires a 'query'")
	}
	query, ok := asString(raw)
	if !ok || query == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "transform query must be a non-empty string")
	}

	result, err := t.jq.Evaluate(ctx, query, inputs)
	if err != nil {
		return nil, err
	}

	return map[string]any{"output": result}, nil
}
