package templates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/graphrun/internal/expressions"
)

func conditionTpl(t *testing.T) Template {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	return NewConditionTemplate(cel)
}

func TestCondition_MatchesOnInputs(t *testing.T) {
	tpl := conditionTpl(t)

	outputs, err := tpl.Execute(context.Background(),
		map[string]any{"value": 10},
		map[string]any{"expression": "inputs.value > 5"},
		&ExecutionContext{WorkflowID: "wf", NodeID: "cond-1"})
	require.NoError(t, err)

	assert.Equal(t, true, outputs["output"])
	assert.Equal(t, true, outputs["matched"])
}

func TestCondition_NoMatch(t *testing.T) {
	tpl := conditionTpl(t)

	outputs, err := tpl.Execute(context.Background(),
		map[string]any{"value": 1},
		map[string]any{"expression": "inputs.value > 5"},
		&ExecutionContext{})
	require.NoError(t, err)

	assert.Equal(t, false, outputs["matched"])
}

func TestCondition_ReadsUpstreamNodes(t *testing.T) {
	tpl := conditionTpl(t)
	ec := &ExecutionContext{
		GetAllUpstreamData: func() map[string]map[string]any {
			return map[string]map[string]any{
				"fetch-1": {"status": "ok"},
			}
		},
	}

	outputs, err := tpl.Execute(context.Background(),
		map[string]any{},
		map[string]any{"expression": `nodes["fetch-1"].status == "ok"`},
		ec)
	require.NoError(t, err)
	assert.Equal(t, true, outputs["matched"])
}

func TestCondition_ReadsVariables(t *testing.T) {
	tpl := conditionTpl(t)
	ec := &ExecutionContext{Variables: map[string]any{"env": "prod"}}

	outputs, err := tpl.Execute(context.Background(),
		map[string]any{},
		map[string]any{"expression": `variables.env == "prod"`},
		ec)
	require.NoError(t, err)
	assert.Equal(t, true, outputs["matched"])
}

func TestCondition_RequiresExpression(t *testing.T) {
	tpl := conditionTpl(t)

	_, err := tpl.Execute(context.Background(), map[string]any{}, map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an 'expression'")
}

func TestCondition_InvalidExpression(t *testing.T) {
	tpl := conditionTpl(t)

	_, err := tpl.Execute(context.Background(),
		map[string]any{},
		map[string]any{"expression": "inputs.value >"},
		nil)
	require.Error(t, err)
}
