package templates

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rendis/graphrun/pkg/schema"
)

const textConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "operation": {
      "type": "string",
      "enum": ["uppercase", "lowercase", "trim", "reverse", "replace"]
    },
    "text": { "type": "string" },
    "old": { "type": "string" },
    "new": { "type": "string" }
  }
}`

type textProcessorTemplate struct{}

// NewTextProcessorTemplate returns a template that applies a string
// operation to its text input.
func NewTextProcessorTemplate() Template { return &textProcessorTemplate{} }

func (t *textProcessorTemplate) Type() string { return "text-processor" }

func (t *textProcessorTemplate) Schema() TemplateSchema {
	return TemplateSchema{
		Description:  "Applies a string operation (uppercase, lowercase, trim, reverse, replace) to its text input",
		ConfigSchema: json.RawMessage(textConfigSchema),
	}
}

func (t *textProcessorTemplate) Execute(ctx context.Context, inputs, nodeData map[string]any, ec *ExecutionContext) (map[string]any, error) {
	text, ok := resolveText(inputs, nodeData, ec)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "text-processor has no text input")
	}

	operation, _ := asString(nodeData["operation"])
	if operation == "" {
		operation = "uppercase"
	}

	var out string
	switch operation {
	case "uppercase":
		out = strings.ToUpper(text)
	case "lowercase":
		out = strings.ToLower(text)
	case "trim":
		out = strings.TrimSpace(text)
	case "reverse":
		runes := []rune(text)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		out = string(runes)
	case "replace":
		oldStr, _ := asString(nodeData["old"])
		newStr, _ := asString(nodeData["new"])
		if oldStr == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "replace operation requires a non-empty 'old' string")
		}
		out = strings.ReplaceAll(text, oldStr, newStr)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown text operation %q", operation)
	}

	return map[string]any{
		"output": out,
		"length": len(out),
	}, nil
}

// resolveText finds the text to process: an explicit "text" parameter
// first, then the positional input (a string, or a map carrying a
// "text" field, the shape the start template emits).
func resolveText(inputs, nodeData map[string]any, ec *ExecutionContext) (string, bool) {
	if v, ok := Param(inputs, nodeData, ec, "text"); ok {
		if s, ok := asString(v); ok {
			return s, true
		}
	}
	switch in := inputs["input"].(type) {
	case string:
		return in, true
	case map[string]any:
		if s, ok := asString(in["text"]); ok {
			return s, true
		}
	}
	return "", false
}
