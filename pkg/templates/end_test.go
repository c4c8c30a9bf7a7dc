package templates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnd_JSONByDefault(t *testing.T) {
	tpl := NewEndTemplate()
	outputs, err := tpl.Execute(context.Background(),
		map[string]any{"input": map[string]any{"done": true}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `{"done":true}`, outputs["finalOutput"])
	assert.Equal(t, map[string]any{"done": true}, outputs["output"])
}

func TestEnd_RawFormat(t *testing.T) {
	tpl := NewEndTemplate()
	value := []any{1, 2, 3}
	outputs, err := tpl.Execute(context.Background(),
		map[string]any{"input": value}, map[string]any{"format": "raw"}, nil)
	require.NoError(t, err)

	assert.Equal(t, value, outputs["finalOutput"])
}

func TestEnd_TextFormat(t *testing.T) {
	tpl := NewEndTemplate()
	outputs, err := tpl.Execute(context.Background(),
		map[string]any{"input": 42}, map[string]any{"format": "text"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "42", outputs["finalOutput"])
}

func TestEnd_NamedInputsWithoutPositional(t *testing.T) {
	tpl := NewEndTemplate()
	outputs, err := tpl.Execute(context.Background(), map[string]any{
		"inputArray": []any{"ignored alias"},
		"status":     "done",
		"count":      2,
	}, nil, nil)
	require.NoError(t, err)

	value, ok := outputs["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "done", value["status"])
	assert.Equal(t, 2, value["count"])
	assert.NotContains(t, value, "inputArray")
}

func TestEnd_NoInputAtAll(t *testing.T) {
	tpl := NewEndTemplate()
	outputs, err := tpl.Execute(context.Background(), map[string]any{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "null", outputs["finalOutput"])
	assert.Nil(t, outputs["output"])
}
