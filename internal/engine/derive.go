package engine

import (
	"github.com/expr-lang/expr/vm"

	"github.com/fairlead/disclosure-backend/internal/schema"
)

// DerivationEngine recomputes derived totals from leaf inputs. The
// evaluation order was fixed at schema build time; each node reads the
// freshly computed value of any upstream derived field, never a manual
// override, so a stale override can never feed back into the chain.
type DerivationEngine struct {
	schema     *schema.Schema
	visibility *VisibilityResolver
}

func NewDerivationEngine(s *schema.Schema, vis *VisibilityResolver) *DerivationEngine {
	return &DerivationEngine{schema: s, visibility: vis}
}

// Recompute walks the topological order once and returns the side map of
// computed values. It is a pure read of the store: calling it twice with
// no intervening mutation yields identical results.
func (d *DerivationEngine) Recompute(store *ValueStore) map[string]float64 {
	computed := make(map[string]float64, len(d.schema.DeriveOrder))
	for _, id := range d.schema.DeriveOrder {
		f := d.schema.Fields[id]
		env := make(map[string]any, len(f.Derive.DependsOn))
		for _, dep := range f.Derive.DependsOn {
			env[dep] = d.dependencyValue(store, computed, dep)
		}
		computed[id] = Round2(d.run(d.schema.DeriveProgram(id), env))
	}
	return computed
}

func (d *DerivationEngine) dependencyValue(store *ValueStore, computed map[string]float64, dep string) float64 {
	f := d.schema.Fields[dep]
	if f.IsDerived() {
		return computed[dep]
	}
	if !d.visibility.IsActive(store, dep) {
		return 0
	}
	if f.Kind == schema.KindRowGroup {
		return d.rowTotal(store, f)
	}
	n, ok := store.Number(dep)
	if !ok {
		return 0
	}
	return n
}

func (d *DerivationEngine) rowTotal(store *ValueStore, group *schema.FieldDefinition) float64 {
	col := group.AmountColumn
	if col == "" {
		return 0
	}
	var sum float64
	for _, row := range store.Rows(group.ID) {
		n, ok := ParseAmount(row.Values[col])
		if !ok {
			continue
		}
		sum += n
	}
	return Round2(sum)
}

func (d *DerivationEngine) run(p *vm.Program, env map[string]any) float64 {
	if p == nil {
		return 0
	}
	out, err := vm.Run(p, env)
	if err != nil {
		return 0
	}
	switch t := out.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return 0
	}
}
