package templates

import (
	"context"
	"encoding/json"

	"github.com/rendis/graphrun/pkg/schema"
)

// startConfigSchema constrains the optional fields declaration.
const startConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "default_value": {},
          "defaultValue": {}
        }
      }
    }
  }
}`

// reserved start-node data keys that are configuration, not payload.
var startReservedKeys = map[string]struct{}{
	"fields":      {},
	"label":       {},
	"name":        {},
	"description": {},
}

type startTemplate struct{}

// NewStartTemplate returns the workflow entry-point template. It has no
// upstream and emits the node's declared fields (or its raw data map) as
// the run's initial payload.
func NewStartTemplate() Template { return &startTemplate{} }

func (t *startTemplate) Type() string { return schema.NodeTypeStart }

func (t *startTemplate) Schema() TemplateSchema {
	return TemplateSchema{
		Description:  "Workflow entry point: emits its declared fields as the initial payload",
		ConfigSchema: json.RawMessage(startConfigSchema),
	}
}

func (t *startTemplate) Execute(ctx context.Context, inputs, nodeData map[string]any, ec *ExecutionContext) (map[string]any, error) {
	payload := make(map[string]any)

	if fields, ok := asSlice(nodeData["fields"]); ok {
		for _, f := range fields {
			field, ok := f.(map[string]any)
			if !ok {
				continue
			}
			name, ok := asString(field["name"])
			if !ok || name == "" {
				continue
			}
			value, present := field["default_value"]
			if !present {
				value = field["defaultValue"]
			}
			payload[name] = value
		}
	} else {
		for k, v := range nodeData {
			if _, reserved := startReservedKeys[k]; reserved {
				continue
			}
			payload[k] = v
		}
	}

	outputs := map[string]any{"output": payload}
	for k, v := range payload {
		if k == "output" {
			continue
		}
		outputs[k] = v
	}
	return outputs, nil
}
