package expressions

import "context"

// Engine evaluates expressions against node-scoped data.
// Three implementations: Expr (loop-body fallback and general logic),
// CEL (condition guards), GoJQ (data transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
