// Package templates defines the node template contract the engine
// executes against, a thread-safe registry, and the built-in templates.
package templates

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/graphrun/pkg/schema"
)

// Template is the registered definition of a node type's behavior.
type Template interface {
	// Type is the node-type string this template executes.
	Type() string
	// Schema describes the template and optionally declares a JSON Schema
	// for its node data.
	Schema() TemplateSchema
	// Execute runs the node. inputs is the resolved input map, nodeData
	// the node's free-form configuration, and ec the execution context
	// surface. A returned error marks the node's result as failed.
	Execute(ctx context.Context, inputs, nodeData map[string]any, ec *ExecutionContext) (map[string]any, error)
}

// Lookup is the read-only registry view the engine depends on.
type Lookup interface {
	Get(nodeType string) (Template, error)
}

// TemplateSchema describes a template for listing and config validation.
type TemplateSchema struct {
	Description  string          `json:"description,omitempty"`
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`
}

// TemplateInfo is a summary of a registered template.
type TemplateInfo struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ExecutionContext is the surface handed to every template at execute
// time. The loop-related members are nil for contexts not related to
// loop orchestration; templates must tolerate their absence.
type ExecutionContext struct {
	WorkflowID      string
	NodeID          string
	Variables       map[string]any
	WorkflowContext map[string]any

	// Selections are the node's declared parameter bindings. Static
	// bindings are resolved by templates (via Param); upstream bindings
	// are resolved by the engine's input resolver.
	Selections map[string]schema.ParameterSelection

	GetUpstreamData       func(nodeID string) (map[string]any, bool)
	GetAllUpstreamData    func() map[string]map[string]any
	GetUpstreamDataByType func(nodeType string) (map[string]any, bool)

	GetLoopBodyNode func(loopNodeID string) (*schema.GraphNode, bool)
	ExecuteLoopBody func(ctx context.Context, loopNodeID string, body *schema.GraphNode, element any, index int, array []any) (any, error)

	Logger *slog.Logger
}

// Log returns the context logger, falling back to slog.Default.
func (ec *ExecutionContext) Log() *slog.Logger {
	if ec == nil || ec.Logger == nil {
		return slog.Default()
	}
	return ec.Logger
}

// Param resolves a logical parameter by precedence: the engine-resolved
// input map first, then a static binding declared on the node, then the
// node's own data map.
func Param(inputs, nodeData map[string]any, ec *ExecutionContext, name string) (any, bool) {
	if v, ok := inputs[name]; ok {
		return v, true
	}
	if ec != nil {
		if sel, ok := ec.Selections[name]; ok && sel.Source == schema.BindingStatic {
			return sel.StaticValue, true
		}
	}
	if v, ok := nodeData[name]; ok {
		return v, true
	}
	return nil, false
}
