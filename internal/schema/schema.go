package schema

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type FieldKind string

const (
	KindText       FieldKind = "text"
	KindCurrency   FieldKind = "currency"
	KindPercentage FieldKind = "percentage"
	KindDate       FieldKind = "date"
	KindBoolean    FieldKind = "boolean"
	KindSignature  FieldKind = "signature"
	KindEnum       FieldKind = "enum"
	KindRowGroup   FieldKind = "row_group"
)

// DefaultTolerance is the absolute mismatch tolerance for a derived
// currency field when the schema asset does not set one. Higher-level
// cross-checks (net worth, liquidity) typically widen it to 1.00.
const DefaultTolerance = 0.01

type Constraints struct {
	Required   bool
	RequiredIf string
	Min        *float64
	Max        *float64
	MaxLength  int
	Pattern    string
	EnumValues []string
}

// Derivation describes how a derived field's value is computed. Expr is an
// expression over the named upstream field ids; row-group dependencies are
// bound to the sum of their visible rows' amounts.
type Derivation struct {
	DependsOn []string
	Expr      string
}

// RowColumn is one cell definition inside a repeatable row group.
type RowColumn struct {
	ID    string
	Kind  FieldKind
	Label string
}

type FieldDefinition struct {
	ID          string
	Kind        FieldKind
	Label       string
	Step        int
	Constraints Constraints
	// VisibleIf is an expression over other fields; empty means always
	// visible. Predicates must be pure reads of the value store.
	VisibleIf string
	Derive    *Derivation
	Tolerance float64
	// Row-group only.
	Columns []RowColumn
	// PairedColumns names the columns bound by the either-both rule: if
	// any one of them is filled on a row, the rest become required.
	PairedColumns []string
	// AmountColumn is the column summed when this group appears as a
	// derivation dependency.
	AmountColumn string
}

func (f *FieldDefinition) IsDerived() bool { return f.Derive != nil }

// SignatureSet binds a signature image, printed name, and date field into
// an all-or-nothing tuple. Members are checked in the order listed.
type SignatureSet struct {
	ID          string
	Signature   string
	PrintedName string
	Date        string
	RequiredIf  string
}

func (s *SignatureSet) Members() []string {
	return []string{s.Signature, s.PrintedName, s.Date}
}

// Schema is the immutable description of one form, built once at process
// start. DeriveOrder is the fixed topological evaluation order; a cyclic
// dependency graph fails Build and must prevent startup.
type Schema struct {
	Name          string
	Title         string
	Fields        map[string]*FieldDefinition
	Order         []string
	SignatureSets []SignatureSet
	DeriveOrder   []string

	visibility map[string]*vm.Program
	requiredIf map[string]*vm.Program
	derive     map[string]*vm.Program
	setReq     map[string]*vm.Program
	patterns   map[string]*regexp.Regexp
}

// Steps returns the distinct step numbers present, ascending.
func (s *Schema) Steps() []int {
	seen := map[int]bool{}
	var out []int
	for _, id := range s.Order {
		f := s.Fields[id]
		if !seen[f.Step] {
			seen[f.Step] = true
			out = append(out, f.Step)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// StepFields returns field ids declared on the given step, in declaration
// order.
func (s *Schema) StepFields(step int) []string {
	var out []string
	for _, id := range s.Order {
		if s.Fields[id].Step == step {
			out = append(out, id)
		}
	}
	return out
}

func (s *Schema) VisibilityProgram(fieldID string) *vm.Program { return s.visibility[fieldID] }
func (s *Schema) RequiredIfProgram(fieldID string) *vm.Program { return s.requiredIf[fieldID] }
func (s *Schema) DeriveProgram(fieldID string) *vm.Program     { return s.derive[fieldID] }
func (s *Schema) SetRequiredProgram(setID string) *vm.Program  { return s.setReq[setID] }
func (s *Schema) PatternRegexp(fieldID string) *regexp.Regexp  { return s.patterns[fieldID] }

func (s *Schema) ToleranceFor(fieldID string) float64 {
	f, ok := s.Fields[fieldID]
	if !ok || f.Tolerance <= 0 {
		return DefaultTolerance
	}
	return f.Tolerance
}

// Build validates field definitions, compiles every expression, and fixes
// the derivation order. All failures here are configuration errors: the
// caller must treat them as fatal and refuse to start.
func Build(name, title string, fields []*FieldDefinition, sets []SignatureSet) (*Schema, error) {
	s := &Schema{
		Name:          name,
		Title:         title,
		Fields:        make(map[string]*FieldDefinition, len(fields)),
		SignatureSets: sets,
		visibility:    map[string]*vm.Program{},
		requiredIf:    map[string]*vm.Program{},
		derive:        map[string]*vm.Program{},
		setReq:        map[string]*vm.Program{},
		patterns:      map[string]*regexp.Regexp{},
	}

	for _, f := range fields {
		if f.ID == "" {
			return nil, fmt.Errorf("schema %q: field with empty id", name)
		}
		if _, dup := s.Fields[f.ID]; dup {
			return nil, fmt.Errorf("schema %q: duplicate field id %q", name, f.ID)
		}
		s.Fields[f.ID] = f
		s.Order = append(s.Order, f.ID)
	}

	for _, f := range fields {
		if f.VisibleIf != "" {
			p, err := compile(f.VisibleIf)
			if err != nil {
				return nil, fmt.Errorf("schema %q: field %q visible_if: %w", name, f.ID, err)
			}
			s.visibility[f.ID] = p
		}
		if f.Constraints.RequiredIf != "" {
			p, err := compile(f.Constraints.RequiredIf)
			if err != nil {
				return nil, fmt.Errorf("schema %q: field %q required_if: %w", name, f.ID, err)
			}
			s.requiredIf[f.ID] = p
		}
		if f.Constraints.Pattern != "" {
			re, err := regexp.Compile(f.Constraints.Pattern)
			if err != nil {
				return nil, fmt.Errorf("schema %q: field %q pattern: %w", name, f.ID, err)
			}
			s.patterns[f.ID] = re
		}
		if f.Derive != nil {
			if f.Derive.Expr == "" {
				return nil, fmt.Errorf("schema %q: derived field %q has empty expression", name, f.ID)
			}
			for _, dep := range f.Derive.DependsOn {
				if _, ok := s.Fields[dep]; !ok {
					return nil, fmt.Errorf("schema %q: field %q depends on unknown field %q", name, f.ID, dep)
				}
			}
			p, err := compile(f.Derive.Expr)
			if err != nil {
				return nil, fmt.Errorf("schema %q: field %q derive: %w", name, f.ID, err)
			}
			s.derive[f.ID] = p
		}
		if f.Kind == KindRowGroup {
			if len(f.Columns) == 0 {
				return nil, fmt.Errorf("schema %q: row group %q has no columns", name, f.ID)
			}
			cols := map[string]bool{}
			for _, c := range f.Columns {
				if cols[c.ID] {
					return nil, fmt.Errorf("schema %q: row group %q duplicate column %q", name, f.ID, c.ID)
				}
				cols[c.ID] = true
			}
			for _, pc := range f.PairedColumns {
				if !cols[pc] {
					return nil, fmt.Errorf("schema %q: row group %q pairs unknown column %q", name, f.ID, pc)
				}
			}
			if f.AmountColumn != "" && !cols[f.AmountColumn] {
				return nil, fmt.Errorf("schema %q: row group %q amount column %q not declared", name, f.ID, f.AmountColumn)
			}
		}
	}

	for i := range sets {
		set := &sets[i]
		for _, m := range set.Members() {
			if _, ok := s.Fields[m]; !ok {
				return nil, fmt.Errorf("schema %q: signature set %q references unknown field %q", name, set.ID, m)
			}
		}
		if set.RequiredIf != "" {
			p, err := compile(set.RequiredIf)
			if err != nil {
				return nil, fmt.Errorf("schema %q: signature set %q required_if: %w", name, set.ID, err)
			}
			s.setReq[set.ID] = p
		}
	}

	order, err := deriveOrder(s)
	if err != nil {
		return nil, fmt.Errorf("schema %q: %w", name, err)
	}
	s.DeriveOrder = order
	return s, nil
}

func compile(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.AllowUndefinedVariables())
}
