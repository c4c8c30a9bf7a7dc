package templates

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/graphrun/pkg/schema"
)

const endConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "format": { "type": "string", "enum": ["json", "text", "raw"] }
  }
}`

// input aliases injected by the resolver, excluded when reconstructing
// the end node's primary value from a full input map.
var inputAliasKeys = map[string]struct{}{
	"input":      {},
	"inputArray": {},
}

type endTemplate struct{}

// NewEndTemplate returns the workflow terminal template. It renders its
// primary input as the run's final output: JSON text by default,
// "text" for fmt-style rendering, "raw" to pass the value through.
func NewEndTemplate() Template { return &endTemplate{} }

func (t *endTemplate) Type() string { return schema.NodeTypeEnd }

func (t *endTemplate) Schema() TemplateSchema {
	return TemplateSchema{
		Description:  "Workflow terminal point: renders its input as the run's final output",
		ConfigSchema: json.RawMessage(endConfigSchema),
	}
}

func (t *endTemplate) Execute(ctx context.Context, inputs, nodeData map[string]any, ec *ExecutionContext) (map[string]any, error) {
	value, ok := inputs["input"]
	if !ok {
		// No positional input: use the remaining named inputs as the value.
		named := make(map[string]any)
		for k, v := range inputs {
			if _, alias := inputAliasKeys[k]; alias {
				continue
			}
			named[k] = v
		}
		if len(named) > 0 {
			value = named
		}
	}

	format, _ := asString(nodeData["format"])
	var finalOutput any
	switch format {
	case "raw":
		finalOutput = value
	case "text":
		finalOutput = fmt.Sprintf("%v", value)
	default: // "json"
		b, err := json.Marshal(value)
		if err != nil {
			finalOutput = fmt.Sprintf("%v", value)
		} else {
			finalOutput = string(b)
		}
	}

	return map[string]any{
		"finalOutput": finalOutput,
		"output":      value,
	}, nil
}
