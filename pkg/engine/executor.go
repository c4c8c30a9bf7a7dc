// Package engine executes workflow graphs: it validates structure,
// derives a parent-first execution order, resolves each node's inputs
// from its parent's recorded outputs and runs the node's registered
// template, accumulating per-node results into a run outcome.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/graphrun/internal/logging"
	"github.com/rendis/graphrun/internal/validation"
	"github.com/rendis/graphrun/pkg/schema"
	"github.com/rendis/graphrun/pkg/templates"
)

// RunRecorder persists a completed run outcome. Recording is
// best-effort: a recorder failure is logged and never fails the run.
type RunRecorder interface {
	SaveRun(ctx context.Context, result *schema.RunResult) error
}

// Executor runs workflow graphs sequentially, one node at a time.
// Results accumulate across ExecuteWorkflow calls on the same instance
// until Reset; an Executor is not safe for concurrent use.
type Executor struct {
	workflowID string
	registry   templates.Lookup
	logger     *slog.Logger
	recorder   RunRecorder
	validator  *validation.JSONSchemaValidator
	variables  map[string]any

	startedAt time.Time
	results   map[string]*schema.ExecutionResult
	graph     *schema.WorkflowGraph
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the run logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithVariables seeds run-scoped variables visible to templates.
func WithVariables(vars map[string]any) Option {
	return func(e *Executor) {
		for k, v := range vars {
			e.variables[k] = v
		}
	}
}

// WithRecorder attaches a run recorder that receives every completed
// run outcome, successful or not.
func WithRecorder(r RunRecorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithConfigValidation enables per-node validation of node data against
// the template's declared config schema before the node runs.
func WithConfigValidation(v *validation.JSONSchemaValidator) Option {
	return func(e *Executor) { e.validator = v }
}

// NewExecutor creates an executor for the given workflow. An empty
// workflowID gets a generated run identifier.
func NewExecutor(workflowID string, registry templates.Lookup, opts ...Option) *Executor {
	if workflowID == "" {
		workflowID = "run-" + uuid.NewString()[:8]
	}
	e := &Executor{
		workflowID: workflowID,
		registry:   registry,
		logger:     slog.Default(),
		variables:  make(map[string]any),
		startedAt:  time.Now().UTC(),
		results:    make(map[string]*schema.ExecutionResult),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WorkflowID returns the executor's run identifier.
func (e *Executor) WorkflowID() string { return e.workflowID }

// ExecutionResults exposes the accumulated per-node results, keyed by
// node ID. The map is live: later runs on this executor extend it.
func (e *Executor) ExecutionResults() map[string]*schema.ExecutionResult {
	return e.results
}

// Reset clears accumulated results, variables and the run start time,
// making the executor equivalent to a fresh instance.
func (e *Executor) Reset() {
	e.results = make(map[string]*schema.ExecutionResult)
	e.variables = make(map[string]any)
	e.startedAt = time.Now().UTC()
}

// ExecuteWorkflow runs the graph to completion and never returns an
// error: every failure mode is folded into the returned RunResult.
// Execution aborts on the first node failure, keeping the results of
// nodes that already ran. Loop body nodes are skipped in the main walk;
// their results are written by the loop node's sub-execution.
func (e *Executor) ExecuteWorkflow(ctx context.Context, g *schema.WorkflowGraph) *schema.RunResult {
	ctx = logging.WithWorkflowID(ctx, e.workflowID)
	logger := logging.LogWith(ctx, e.logger)

	run := &schema.RunResult{
		WorkflowID: e.workflowID,
		Results:    e.results,
		StartedAt:  e.startedAt,
	}

	if err := Validate(g); err != nil {
		logger.Error("workflow validation failed", "error", err)
		run.Error = asFlowError(err)
		return e.finish(ctx, run)
	}

	e.graph = g
	defer func() { e.graph = nil }()

	logger.Info("workflow execution started", "nodes", len(g.Nodes))

	for _, node := range BuildOrder(g.Nodes) {
		if node.IsLoopBodyNode {
			continue
		}

		result, err := e.executeNode(ctx, node)
		if err != nil {
			// No template for the node type, or another setup failure:
			// the run aborts without an execution result for this node.
			logger.Error("workflow execution aborted", "node_id", node.ID, "error", err)
			run.Error = asFlowError(err).WithNode(node.ID)
			return e.finish(ctx, run)
		}
		if !result.Success {
			logger.Error("node failed, aborting workflow",
				"node_id", node.ID, "node_type", node.Type, "error", result.Error)
			run.Error = schema.NewErrorf(schema.ErrCodeNodeFailed,
				"node %s (%s) failed: %s", node.ID, node.Type, result.Error).WithNode(node.ID)
			return e.finish(ctx, run)
		}

		if node.Type == schema.NodeTypeEnd {
			run.FinalOutput = result.Outputs["finalOutput"]
		}
	}

	run.Success = true
	logger.Info("workflow execution completed", "results", len(run.Results))
	return e.finish(ctx, run)
}

// executeNode resolves inputs, runs the node's template and records the
// outcome. The returned error is reserved for failures that must abort
// the run without producing an ExecutionResult, such as an unregistered
// node type; template errors are folded into a failed result instead.
func (e *Executor) executeNode(ctx context.Context, node *schema.GraphNode) (*schema.ExecutionResult, error) {
	ctx = logging.WithNodeID(ctx, node.ID)
	logger := logging.LogWith(ctx, e.logger)

	tpl, err := e.registry.Get(node.Type)
	if err != nil {
		return nil, err
	}

	result := &schema.ExecutionResult{
		NodeID:    node.ID,
		NodeType:  node.Type,
		Timestamp: time.Now().UTC(),
		Outputs:   map[string]any{},
	}

	if e.validator != nil {
		if cfg := tpl.Schema().ConfigSchema; len(cfg) > 0 {
			if verr := e.validator.ValidateNodeConfig(node.Data, cfg); verr != nil {
				result.Error = verr.Error()
				e.results[node.ID] = result
				logger.Error("node config invalid", "node_type", node.Type, "error", verr)
				return result, nil
			}
		}
	}

	inputs := e.resolveInputs(ctx, node)
	outputs, execErr := tpl.Execute(ctx, inputs, node.Data, e.executionContext(node, logger))

	if execErr != nil {
		result.Error = execErr.Error()
		e.results[node.ID] = result
		logger.Error("node execution failed", "node_type", node.Type, "error", execErr)
		return result, nil
	}

	result.Success = true
	if outputs != nil {
		result.Outputs = outputs
	}
	e.results[node.ID] = result
	logger.Debug("node executed", "node_type", node.Type, "outputs", len(result.Outputs))
	return result, nil
}

// executeLoopBody runs the loop body node once for a single element,
// on a transient copy carrying the iteration's loop context. The body's
// result lands in the shared results map under the body node's ID, so
// the last iteration wins there; the per-element return value is the
// body's primary output.
func (e *Executor) executeLoopBody(ctx context.Context, loopNodeID string, body *schema.GraphNode, element any, index int, array []any) (any, error) {
	iter := *body
	iter.IsLoopBodyNode = true
	iter.Loop = &schema.LoopContext{
		Element:    element,
		Index:      index,
		Array:      array,
		LoopNodeID: loopNodeID,
	}

	result, err := e.executeNode(ctx, &iter)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, schema.NewErrorf(schema.ErrCodeNodeFailed,
			"loop body node %s failed at index %d: %s", body.ID, index, result.Error).WithNode(body.ID)
	}
	if v, ok := result.Outputs["output"]; ok {
		return v, nil
	}
	return result.Outputs, nil
}

// executionContext assembles the surface handed to the node's template.
func (e *Executor) executionContext(node *schema.GraphNode, logger *slog.Logger) *templates.ExecutionContext {
	ec := &templates.ExecutionContext{
		WorkflowID: e.workflowID,
		NodeID:     node.ID,
		Variables:  e.variables,
		WorkflowContext: map[string]any{
			"workflow_id": e.workflowID,
			"started_at":  e.startedAt.Format(time.RFC3339),
		},
		Selections: node.ParameterSelections,
		Logger:     logger,

		GetUpstreamData: func(nodeID string) (map[string]any, bool) {
			r, ok := e.results[nodeID]
			if !ok || !r.Success {
				return nil, false
			}
			return r.Outputs, true
		},
		GetAllUpstreamData: func() map[string]map[string]any {
			all := make(map[string]map[string]any, len(e.results))
			for id, r := range e.results {
				if r.Success {
					all[id] = r.Outputs
				}
			}
			return all
		},
		GetUpstreamDataByType: func(nodeType string) (map[string]any, bool) {
			if e.graph == nil {
				return nil, false
			}
			for _, n := range e.graph.Nodes {
				if n.Type != nodeType {
					continue
				}
				if r, ok := e.results[n.ID]; ok && r.Success {
					return r.Outputs, true
				}
			}
			return nil, false
		},
	}

	ec.GetLoopBodyNode = func(loopNodeID string) (*schema.GraphNode, bool) {
		if e.graph == nil {
			return nil, false
		}
		loop, ok := e.graph.Node(loopNodeID)
		if !ok || loop.LoopBodyNode == "" {
			return nil, false
		}
		return e.graph.Node(loop.LoopBodyNode)
	}
	ec.ExecuteLoopBody = e.executeLoopBody

	return ec
}

// finish stamps the completion time, records the run if a recorder is
// attached and returns the result.
func (e *Executor) finish(ctx context.Context, run *schema.RunResult) *schema.RunResult {
	now := time.Now().UTC()
	run.CompletedAt = &now

	if e.recorder != nil {
		if err := e.recorder.SaveRun(ctx, run); err != nil {
			logging.LogWith(ctx, e.logger).Warn("failed to record run", "error", err)
		}
	}
	return run
}

func asFlowError(err error) *schema.FlowError {
	if fe, ok := err.(*schema.FlowError); ok {
		return fe
	}
	return schema.NewError(schema.ErrCodeExecution, err.Error()).WithCause(err)
}
