package templates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/graphrun/pkg/schema"
)

type noopTemplate struct{ typ string }

func (n *noopTemplate) Type() string           { return n.typ }
func (n *noopTemplate) Schema() TemplateSchema { return TemplateSchema{Description: "noop"} }
func (n *noopTemplate) Execute(context.Context, map[string]any, map[string]any, *ExecutionContext) (map[string]any, error) {
	return map[string]any{}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&noopTemplate{typ: "noop"}))

	tpl, err := reg.Get("noop")
	require.NoError(t, err)
	assert.Equal(t, "noop", tpl.Type())
	assert.True(t, reg.Has("noop"))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_DuplicateRegistrationConflicts(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&noopTemplate{typ: "noop"}))

	err := reg.Register(&noopTemplate{typ: "noop"})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeConflict, fe.Code)
}

func TestRegistry_GetUnknownType(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("missing")
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeTemplateNotFound, fe.Code)
}

func TestRegistry_ListIsSorted(t *testing.T) {
	reg := NewRegistry()
	for _, typ := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(&noopTemplate{typ: typ}))
	}

	infos := reg.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].Type)
	assert.Equal(t, "mid", infos[1].Type)
	assert.Equal(t, "zeta", infos[2].Type)
}

func TestRegisterBuiltins(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	for _, typ := range []string{"start", "end", "text-processor", "loop", "condition", "transform", "schedule"} {
		assert.True(t, reg.Has(typ), "missing builtin %s", typ)
	}
}

func TestParam_Precedence(t *testing.T) {
	ec := &ExecutionContext{
		Selections: map[string]schema.ParameterSelection{
			"text": {Source: schema.BindingStatic, StaticValue: "from-static"},
		},
	}
	inputs := map[string]any{"text": "from-inputs"}
	nodeData := map[string]any{"text": "from-data"}

	v, ok := Param(inputs, nodeData, ec, "text")
	require.True(t, ok)
	assert.Equal(t, "from-inputs", v)

	v, ok = Param(map[string]any{}, nodeData, ec, "text")
	require.True(t, ok)
	assert.Equal(t, "from-static", v)

	v, ok = Param(map[string]any{}, nodeData, &ExecutionContext{}, "text")
	require.True(t, ok)
	assert.Equal(t, "from-data", v)

	_, ok = Param(map[string]any{}, map[string]any{}, nil, "text")
	assert.False(t, ok)
}
