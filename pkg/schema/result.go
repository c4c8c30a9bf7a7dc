package schema

import "time"

// ExecutionResult records the outcome of one node execution. Exactly one
// result exists per node per run; loop-body iterations overwrite the body
// node's entry so the final iteration's result remains.
type ExecutionResult struct {
	NodeID    string         `json:"node_id"`
	NodeType  string         `json:"node_type"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Outputs   map[string]any `json:"outputs"`
	Error     string         `json:"error,omitempty"`
}

// Output returns the named output value, if present.
func (r *ExecutionResult) Output(key string) (any, bool) {
	if r == nil || r.Outputs == nil {
		return nil, false
	}
	v, ok := r.Outputs[key]
	return v, ok
}

// RunResult is the structured outcome of one workflow run, returned by
// the executor. It is always populated; engine-internal failures surface
// here rather than as returned errors.
type RunResult struct {
	WorkflowID  string                      `json:"workflow_id"`
	Success     bool                        `json:"success"`
	Results     map[string]*ExecutionResult `json:"results"`
	FinalOutput any                         `json:"final_output,omitempty"`
	Error       *FlowError                  `json:"error,omitempty"`
	StartedAt   time.Time                   `json:"started_at"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}
