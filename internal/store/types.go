package store

import (
	"encoding/json"
	"time"
)

// RunRecord is the persisted representation of a workflow run.
type RunRecord struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	Success     bool            `json:"success"`
	FinalOutput json.RawMessage `json:"final_output,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	NodeResults []NodeResultRecord `json:"node_results,omitempty"`
}

// NodeResultRecord is the persisted outcome of a single node execution.
type NodeResultRecord struct {
	NodeID     string          `json:"node_id"`
	NodeType   string          `json:"node_type"`
	Success    bool            `json:"success"`
	Outputs    json.RawMessage `json:"outputs,omitempty"`
	Error      string          `json:"error,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}
