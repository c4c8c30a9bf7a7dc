package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/graphrun/internal/validation"
	"github.com/rendis/graphrun/pkg/schema"
	"github.com/rendis/graphrun/pkg/templates"
)

// stubTemplate lets tests register arbitrary node behavior.
type stubTemplate struct {
	typ    string
	config json.RawMessage
	fn     func(ctx context.Context, inputs, nodeData map[string]any, ec *templates.ExecutionContext) (map[string]any, error)
}

func (s *stubTemplate) Type() string { return s.typ }

func (s *stubTemplate) Schema() templates.TemplateSchema {
	return templates.TemplateSchema{ConfigSchema: s.config}
}

func (s *stubTemplate) Execute(ctx context.Context, inputs, nodeData map[string]any, ec *templates.ExecutionContext) (map[string]any, error) {
	return s.fn(ctx, inputs, nodeData, ec)
}

func builtinRegistry(t *testing.T, extra ...templates.Template) *templates.Registry {
	t.Helper()
	reg := templates.NewRegistry()
	require.NoError(t, templates.RegisterBuiltins(reg))
	for _, tpl := range extra {
		require.NoError(t, reg.Register(tpl))
	}
	return reg
}

type capturingRecorder struct {
	saved []*schema.RunResult
	err   error
}

func (r *capturingRecorder) SaveRun(ctx context.Context, result *schema.RunResult) error {
	r.saved = append(r.saved, result)
	return r.err
}

func TestExecuteWorkflow_LinearSuccess(t *testing.T) {
	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-linear",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart, Data: map[string]any{
				"fields": []any{map[string]any{"name": "text", "default_value": "hello"}},
			}},
			{ID: "upper-1", Type: "text-processor", Data: map[string]any{"operation": "uppercase"}},
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{
			{ID: "e1", Source: "start-1", Target: "upper-1"},
			{ID: "e2", Source: "upper-1", Target: "end-1"},
		},
	})

	exec := NewExecutor("wf-linear", builtinRegistry(t))
	run := exec.ExecuteWorkflow(context.Background(), g)

	require.True(t, run.Success, "run error: %v", run.Error)
	assert.Nil(t, run.Error)
	assert.Len(t, run.Results, 3)
	require.NotNil(t, run.CompletedAt)

	upper := run.Results["upper-1"]
	require.NotNil(t, upper)
	assert.True(t, upper.Success)
	assert.Equal(t, "HELLO", upper.Outputs["output"])

	// The end node renders JSON by default.
	assert.Equal(t, `"HELLO"`, run.FinalOutput)
}

func TestExecuteWorkflow_ValidationFailure(t *testing.T) {
	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-no-end",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart},
			{ID: "t", Type: "transform"},
		},
		Edges: []*schema.Edge{{ID: "e1", Source: "start-1", Target: "t"}},
	})

	exec := NewExecutor("wf-no-end", builtinRegistry(t))
	run := exec.ExecuteWorkflow(context.Background(), g)

	assert.False(t, run.Success)
	require.NotNil(t, run.Error)
	assert.Equal(t, schema.ErrCodeValidation, run.Error.Code)
	assert.Contains(t, run.Error.Message, "end node")
	assert.Empty(t, run.Results)
	assert.NotNil(t, run.CompletedAt)
}

func TestExecuteWorkflow_AbortsOnNodeFailure(t *testing.T) {
	boom := &stubTemplate{typ: "boom", fn: func(context.Context, map[string]any, map[string]any, *templates.ExecutionContext) (map[string]any, error) {
		return nil, schema.NewError(schema.ErrCodeExecution, "kaboom")
	}}

	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-fail",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart},
			{ID: "boom-1", Type: "boom"},
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{
			{ID: "e1", Source: "start-1", Target: "boom-1"},
			{ID: "e2", Source: "boom-1", Target: "end-1"},
		},
	})

	exec := NewExecutor("wf-fail", builtinRegistry(t, boom))
	run := exec.ExecuteWorkflow(context.Background(), g)

	assert.False(t, run.Success)
	require.NotNil(t, run.Error)
	assert.Equal(t, schema.ErrCodeNodeFailed, run.Error.Code)
	assert.Equal(t, "boom-1", run.Error.NodeID)

	// Partial results survive: the start node ran, the end node never did.
	assert.Contains(t, run.Results, "start-1")
	require.Contains(t, run.Results, "boom-1")
	assert.False(t, run.Results["boom-1"].Success)
	assert.Contains(t, run.Results["boom-1"].Error, "kaboom")
	assert.NotContains(t, run.Results, "end-1")
}

func TestExecuteWorkflow_UnknownNodeTypeAborts(t *testing.T) {
	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-ghost",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart},
			{ID: "ghost-1", Type: "ghost"},
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{
			{ID: "e1", Source: "start-1", Target: "ghost-1"},
			{ID: "e2", Source: "ghost-1", Target: "end-1"},
		},
	})

	exec := NewExecutor("wf-ghost", builtinRegistry(t))
	run := exec.ExecuteWorkflow(context.Background(), g)

	assert.False(t, run.Success)
	require.NotNil(t, run.Error)
	assert.Equal(t, schema.ErrCodeTemplateNotFound, run.Error.Code)
	assert.Equal(t, "ghost-1", run.Error.NodeID)

	// A missing template produces no execution result for the node.
	assert.Contains(t, run.Results, "start-1")
	assert.NotContains(t, run.Results, "ghost-1")
}

func TestExecuteWorkflow_ResultsAccumulateUntilReset(t *testing.T) {
	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-acc",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart, Data: map[string]any{"greeting": "hi"}},
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{{ID: "e1", Source: "start-1", Target: "end-1"}},
	})

	exec := NewExecutor("wf-acc", builtinRegistry(t))

	first := exec.ExecuteWorkflow(context.Background(), g)
	require.True(t, first.Success)
	assert.Len(t, exec.ExecutionResults(), 2)

	second := exec.ExecuteWorkflow(context.Background(), g)
	require.True(t, second.Success)
	// Same node IDs: entries are overwritten, not duplicated.
	assert.Len(t, exec.ExecutionResults(), 2)

	exec.Reset()
	assert.Empty(t, exec.ExecutionResults())
}

func TestExecuteWorkflow_LoopWithBodyNode(t *testing.T) {
	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-loop",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart, Data: map[string]any{
				"fields": []any{map[string]any{"name": "items", "default_value": []any{"alpha", "beta"}}},
			}},
			{ID: "loop-1", Type: "loop", Data: map[string]any{"loopType": "map"},
				ParameterSelections: map[string]schema.ParameterSelection{
					"inputArray": {Source: schema.BindingUpstream, SourceNodeID: "start-1", SourceOutputKey: "items"},
				}},
			{ID: "upper-1", Type: "text-processor", Data: map[string]any{"operation": "uppercase"}},
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{
			{ID: "e1", Source: "start-1", Target: "loop-1"},
			{ID: "e2", Source: "loop-1", SourceHandle: schema.LoopBodyHandle, Target: "upper-1"},
			{ID: "e3", Source: "loop-1", Target: "end-1"},
		},
	})

	exec := NewExecutor("wf-loop", builtinRegistry(t))
	run := exec.ExecuteWorkflow(context.Background(), g)

	require.True(t, run.Success, "run error: %v", run.Error)

	loop := run.Results["loop-1"]
	require.NotNil(t, loop)
	assert.Equal(t, []any{"ALPHA", "BETA"}, loop.Outputs["output"])
	assert.Equal(t, 2, loop.Outputs["count"])

	// The body's slot holds its last iteration.
	body := run.Results["upper-1"]
	require.NotNil(t, body)
	assert.True(t, body.Success)
	assert.Equal(t, "BETA", body.Outputs["output"])
}

func TestExecuteWorkflow_LoopBodyFailureAbortsRun(t *testing.T) {
	flaky := &stubTemplate{typ: "flaky", fn: func(ctx context.Context, inputs, nodeData map[string]any, ec *templates.ExecutionContext) (map[string]any, error) {
		if idx, ok := inputs["index"].(int); ok && idx == 1 {
			return nil, schema.NewError(schema.ErrCodeExecution, "second element refused")
		}
		return map[string]any{"output": inputs["element"]}, nil
	}}

	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-loop-fail",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart, Data: map[string]any{
				"fields": []any{map[string]any{"name": "items", "default_value": []any{"a", "b", "c"}}},
			}},
			{ID: "loop-1", Type: "loop",
				ParameterSelections: map[string]schema.ParameterSelection{
					"inputArray": {Source: schema.BindingUpstream, SourceNodeID: "start-1", SourceOutputKey: "items"},
				}},
			{ID: "flaky-1", Type: "flaky"},
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{
			{ID: "e1", Source: "start-1", Target: "loop-1"},
			{ID: "e2", Source: "loop-1", SourceHandle: schema.LoopBodyHandle, Target: "flaky-1"},
			{ID: "e3", Source: "loop-1", Target: "end-1"},
		},
	})

	exec := NewExecutor("wf-loop-fail", builtinRegistry(t, flaky))
	run := exec.ExecuteWorkflow(context.Background(), g)

	assert.False(t, run.Success)
	require.NotNil(t, run.Error)
	assert.Equal(t, "loop-1", run.Error.NodeID)
	assert.NotContains(t, run.Results, "end-1")
}

func TestExecuteWorkflow_RecorderReceivesEveryOutcome(t *testing.T) {
	rec := &capturingRecorder{}
	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-rec",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart},
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{{ID: "e1", Source: "start-1", Target: "end-1"}},
	})

	exec := NewExecutor("wf-rec", builtinRegistry(t), WithRecorder(rec))
	run := exec.ExecuteWorkflow(context.Background(), g)

	require.True(t, run.Success)
	require.Len(t, rec.saved, 1)
	assert.Equal(t, "wf-rec", rec.saved[0].WorkflowID)
}

func TestExecuteWorkflow_RecorderFailureDoesNotFailRun(t *testing.T) {
	rec := &capturingRecorder{err: schema.NewError(schema.ErrCodeStore, "disk gone")}
	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-rec-fail",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart},
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{{ID: "e1", Source: "start-1", Target: "end-1"}},
	})

	exec := NewExecutor("wf-rec-fail", builtinRegistry(t), WithRecorder(rec))
	run := exec.ExecuteWorkflow(context.Background(), g)
	assert.True(t, run.Success)
}

func TestExecuteWorkflow_ConfigValidationFailsNode(t *testing.T) {
	strict := &stubTemplate{
		typ: "strict",
		config: json.RawMessage(`{
			"type": "object",
			"required": ["mode"],
			"properties": { "mode": { "type": "string" } }
		}`),
		fn: func(context.Context, map[string]any, map[string]any, *templates.ExecutionContext) (map[string]any, error) {
			return map[string]any{"output": "ran"}, nil
		},
	}

	validator, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	g := mustGraph(t, &schema.WorkflowDocument{
		ID: "wf-config",
		Nodes: []*schema.GraphNode{
			{ID: "start-1", Type: schema.NodeTypeStart},
			{ID: "strict-1", Type: "strict"}, // no "mode" in data
			{ID: "end-1", Type: schema.NodeTypeEnd},
		},
		Edges: []*schema.Edge{
			{ID: "e1", Source: "start-1", Target: "strict-1"},
			{ID: "e2", Source: "strict-1", Target: "end-1"},
		},
	})

	exec := NewExecutor("wf-config", builtinRegistry(t, strict), WithConfigValidation(validator))
	run := exec.ExecuteWorkflow(context.Background(), g)

	assert.False(t, run.Success)
	require.Contains(t, run.Results, "strict-1")
	assert.False(t, run.Results["strict-1"].Success)
}

func TestNewExecutor_GeneratesRunIDWhenEmpty(t *testing.T) {
	exec := NewExecutor("", builtinRegistry(t))
	assert.NotEmpty(t, exec.WorkflowID())
	assert.Contains(t, exec.WorkflowID(), "run-")
}
