package templates

import "github.com/rendis/graphrun/internal/expressions"

// RegisterBuiltins registers all built-in templates in the given registry.
func RegisterBuiltins(reg *Registry) error {
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}

	all := []Template{
		NewStartTemplate(),
		NewEndTemplate(),
		NewTextProcessorTemplate(),
		NewLoopTemplate(expressions.NewExprEngine()),
		NewConditionTemplate(celEngine),
		NewTransformTemplate(expressions.NewGoJQEngine()),
		NewScheduleTemplate(),
	}

	for _, tpl := range all {
		if err := reg.Register(tpl); err != nil {
			return err
		}
	}
	return nil
}
