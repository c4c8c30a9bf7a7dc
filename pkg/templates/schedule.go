package templates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/graphrun/pkg/schema"
)

const scheduleConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["cron"],
  "properties": {
    "cron": { "type": "string", "minLength": 1 },
    "count": { "type": "integer", "minimum": 1, "maximum": 100 }
  }
}`

type scheduleTemplate struct {
	parser cron.Parser
}

// NewScheduleTemplate returns a template that parses a standard
// five-field cron spec from node data and emits the next activation
// timestamps. Upstream input passes through untouched under "input".
func NewScheduleTemplate() Template {
	return &scheduleTemplate{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

func (t *scheduleTemplate) Type() string { return "schedule" }

func (t *scheduleTemplate) Schema() TemplateSchema {
	return TemplateSchema{
		Description:  "Computes the next N activation timestamps of a cron spec",
		ConfigSchema: json.RawMessage(scheduleConfigSchema),
	}
}

func (t *scheduleTemplate) Execute(ctx context.Context, inputs, nodeData map[string]any, ec *ExecutionContext) (map[string]any, error) {
	raw, ok := Param(inputs, nodeData, ec, "cron")
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "schedule node requires a 'cron' spec")
	}
	spec, ok := asString(raw)
	if !ok || spec == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "cron spec must be a non-empty string")
	}

	sched, err := t.parser.Parse(spec)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron spec %q: %s", spec, err.Error()).WithCause(err)
	}

	count := 3
	if n, ok := asInt(nodeData["count"]); ok && n > 0 {
		count = n
	}
	if count > 100 {
		count = 100
	}

	next := make([]any, 0, count)
	at := time.Now().UTC()
	for i := 0; i < count; i++ {
		at = sched.Next(at)
		next = append(next, at.Format(time.RFC3339))
	}

	outputs := map[string]any{
		"output": next,
		"next":   next,
		"cron":   spec,
	}
	if in, ok := inputs["input"]; ok {
		outputs["input"] = in
	}
	return outputs, nil
}
