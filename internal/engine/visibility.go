package engine

import (
	"github.com/expr-lang/expr/vm"

	"github.com/fairlead/disclosure-backend/internal/schema"
)

// VisibilityResolver decides which fields are currently active. IsActive
// is total: a field with no predicate is always visible, and a predicate
// that fails to evaluate (or yields a non-boolean) falls back to visible
// rather than erroring. Hidden fields are excluded from required checks
// and contribute 0 to derivation.
type VisibilityResolver struct {
	schema *schema.Schema
}

func NewVisibilityResolver(s *schema.Schema) *VisibilityResolver {
	return &VisibilityResolver{schema: s}
}

func (r *VisibilityResolver) IsActive(store *ValueStore, fieldID string) bool {
	p := r.schema.VisibilityProgram(fieldID)
	if p == nil {
		return true
	}
	return evalBool(p, store.Env(), true)
}

// evalBool runs a compiled predicate against the store environment,
// returning fallback on any evaluation failure.
func evalBool(p *vm.Program, env map[string]any, fallback bool) bool {
	out, err := vm.Run(p, env)
	if err != nil {
		return fallback
	}
	b, ok := out.(bool)
	if !ok {
		return fallback
	}
	return b
}
