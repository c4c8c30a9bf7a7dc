package templates

import (
	"sort"
	"sync"

	"github.com/rendis/graphrun/pkg/schema"
)

// Registry is the concrete thread-safe template registry. The engine
// consumes it through the Lookup interface; registration and listing are
// the concern of whoever assembles the run (CLI, editor backend, tests).
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]Template),
	}
}

// Register adds a template to the registry. Returns error on duplicate type.
func (r *Registry) Register(tpl Template) error {
	if tpl == nil {
		return schema.NewError(schema.ErrCodeValidation, "template is nil")
	}
	nodeType := tpl.Type()
	if nodeType == "" {
		return schema.NewError(schema.ErrCodeValidation, "template type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[nodeType]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "template %q already registered", nodeType)
	}

	r.templates[nodeType] = tpl
	return nil
}

// Get retrieves a template by node type.
func (r *Registry) Get(nodeType string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, ok := r.templates[nodeType]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeTemplateNotFound, "template %q not registered", nodeType)
	}
	return tpl, nil
}

// List returns info for all registered templates, sorted by type.
func (r *Registry) List() []TemplateInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]TemplateInfo, 0, len(r.templates))
	for _, tpl := range r.templates {
		infos = append(infos, TemplateInfo{
			Type:        tpl.Type(),
			Description: tpl.Schema().Description,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Type < infos[j].Type
	})
	return infos
}

// Has checks if a template type is registered.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[nodeType]
	return ok
}

// Count returns the number of registered templates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

var _ Lookup = (*Registry)(nil)
