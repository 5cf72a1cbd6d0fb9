package engine

import (
	"fmt"
	"math"

	"github.com/fairlead/disclosure-backend/internal/schema"
)

type scopeKind int

const (
	scopeField scopeKind = iota
	scopeStep
	scopeForm
)

// Scope limits a validation pass: one field (on blur), one step (on save),
// or the whole form (on submit). Submission must use FormScope; a step
// can be individually valid while the full document is not.
type Scope struct {
	kind    scopeKind
	fieldID string
	step    int
}

func FieldScope(fieldID string) Scope { return Scope{kind: scopeField, fieldID: fieldID} }
func StepScope(step int) Scope        { return Scope{kind: scopeStep, step: step} }
func FormScope() Scope                { return Scope{kind: scopeForm} }

// Validator runs the reconciliation and validation rules over a value
// store. It never mutates the store and never fails: malformed input is a
// finding, not an error.
type Validator struct {
	schema     *schema.Schema
	visibility *VisibilityResolver
	derivation *DerivationEngine
}

func NewValidator(s *schema.Schema, vis *VisibilityResolver, d *DerivationEngine) *Validator {
	return &Validator{schema: s, visibility: vis, derivation: d}
}

func (v *Validator) Validate(store *ValueStore, scope Scope) []Issue {
	var issues []Issue

	for _, id := range v.schema.Order {
		if !v.inScope(scope, id) {
			continue
		}
		f := v.schema.Fields[id]
		if !v.visibility.IsActive(store, id) {
			continue
		}
		if f.Kind == schema.KindRowGroup {
			continue
		}
		issues = append(issues, v.checkField(store, f)...)
	}

	for _, id := range v.schema.Order {
		f := v.schema.Fields[id]
		if f.Kind != schema.KindRowGroup || !v.inScope(scope, id) {
			continue
		}
		if !v.visibility.IsActive(store, id) {
			continue
		}
		issues = append(issues, v.checkRowGroup(store, f)...)
	}

	issues = append(issues, v.checkTotals(store, scope)...)
	issues = append(issues, v.checkSignatureSets(store, scope)...)
	return issues
}

func (v *Validator) inScope(scope Scope, fieldID string) bool {
	switch scope.kind {
	case scopeField:
		return scope.fieldID == fieldID
	case scopeStep:
		return v.schema.Fields[fieldID].Step == scope.step
	default:
		return true
	}
}

// checkField applies required / range / pattern to one active scalar
// field.
func (v *Validator) checkField(store *ValueStore, f *schema.FieldDefinition) []Issue {
	var issues []Issue

	if store.IsBlank(f.ID) {
		if v.isRequired(store, f) {
			issues = append(issues, Issue{
				FieldID:  f.ID,
				Severity: SeverityError,
				Code:     CodeRequired,
				Message:  fmt.Sprintf("%s is required", labelOf(f)),
			})
		}
		return issues
	}

	switch f.Kind {
	case schema.KindCurrency, schema.KindPercentage:
		n, ok := store.Number(f.ID)
		if !ok {
			issues = append(issues, Issue{
				FieldID:  f.ID,
				Severity: SeverityError,
				Code:     CodePattern,
				Message:  fmt.Sprintf("%s is not a valid amount", labelOf(f)),
			})
			return issues
		}
		if f.Constraints.Min != nil && n < *f.Constraints.Min {
			issues = append(issues, Issue{
				FieldID:  f.ID,
				Severity: SeverityError,
				Code:     CodeRange,
				Message:  fmt.Sprintf("%s must be at least %.2f", labelOf(f), *f.Constraints.Min),
			})
		}
		if f.Constraints.Max != nil && n > *f.Constraints.Max {
			issues = append(issues, Issue{
				FieldID:  f.ID,
				Severity: SeverityError,
				Code:     CodeRange,
				Message:  fmt.Sprintf("%s must be at most %.2f", labelOf(f), *f.Constraints.Max),
			})
		}
	case schema.KindEnum:
		if len(f.Constraints.EnumValues) > 0 {
			val := store.String(f.ID)
			found := false
			for _, allowed := range f.Constraints.EnumValues {
				if val == allowed {
					found = true
					break
				}
			}
			if !found {
				issues = append(issues, Issue{
					FieldID:  f.ID,
					Severity: SeverityError,
					Code:     CodePattern,
					Message:  fmt.Sprintf("%s is not one of the allowed values", labelOf(f)),
				})
			}
		}
	default:
		s := store.String(f.ID)
		if f.Constraints.MaxLength > 0 && len(s) > f.Constraints.MaxLength {
			issues = append(issues, Issue{
				FieldID:  f.ID,
				Severity: SeverityError,
				Code:     CodeRange,
				Message:  fmt.Sprintf("%s exceeds %d characters", labelOf(f), f.Constraints.MaxLength),
			})
		}
		if re := v.schema.PatternRegexp(f.ID); re != nil && s != "" && !re.MatchString(s) {
			issues = append(issues, Issue{
				FieldID:  f.ID,
				Severity: SeverityError,
				Code:     CodePattern,
				Message:  fmt.Sprintf("%s has an invalid format", labelOf(f)),
			})
		}
	}
	return issues
}

func (v *Validator) isRequired(store *ValueStore, f *schema.FieldDefinition) bool {
	if f.Constraints.Required {
		return true
	}
	if p := v.schema.RequiredIfProgram(f.ID); p != nil {
		return evalBool(p, store.Env(), false)
	}
	return false
}

// checkRowGroup enforces the paired-entry rule: a row that names an asset
// must carry its amount and vice versa. The issue lands on the missing
// cell, not the one the user filled.
func (v *Validator) checkRowGroup(store *ValueStore, group *schema.FieldDefinition) []Issue {
	var issues []Issue
	for _, row := range store.Rows(group.ID) {
		filled := 0
		for _, col := range group.PairedColumns {
			if !IsBlank(row.Values[col]) {
				filled++
			}
		}
		if filled > 0 && filled < len(group.PairedColumns) {
			for _, col := range group.PairedColumns {
				if IsBlank(row.Values[col]) {
					issues = append(issues, Issue{
						FieldID:  RowFieldID(group.ID, row.ID, col),
						Severity: SeverityError,
						Code:     CodePairedFieldMissing,
						Message:  fmt.Sprintf("%s requires both entries on each row", labelOf(group)),
					})
				}
			}
		}
		if group.AmountColumn != "" {
			if raw, present := row.Values[group.AmountColumn]; present && !IsBlank(raw) {
				if _, ok := ParseAmount(raw); !ok {
					issues = append(issues, Issue{
						FieldID:  RowFieldID(group.ID, row.ID, group.AmountColumn),
						Severity: SeverityError,
						Code:     CodePattern,
						Message:  fmt.Sprintf("%s amount is not a valid amount", labelOf(group)),
					})
				}
			}
		}
	}
	return issues
}

// checkTotals reconciles manual overrides against freshly computed derived
// values. A mismatch beyond tolerance warns but never blocks: the user may
// override a total deliberately, but is told the delta. The delta is
// rounded to cents before comparison so a value exactly at tolerance
// passes.
func (v *Validator) checkTotals(store *ValueStore, scope Scope) []Issue {
	var issues []Issue
	if len(v.schema.DeriveOrder) == 0 {
		return issues
	}
	computed := v.derivation.Recompute(store)
	for _, id := range v.schema.DeriveOrder {
		if !v.inScope(scope, id) {
			continue
		}
		if !store.IsManualOverride(id) {
			continue
		}
		if !v.visibility.IsActive(store, id) {
			continue
		}
		manual, ok := store.Number(id)
		if !ok {
			continue
		}
		tol := v.schema.ToleranceFor(id)
		delta := Round2(math.Abs(manual - computed[id]))
		if delta > tol {
			f := v.schema.Fields[id]
			issues = append(issues, Issue{
				FieldID:  id,
				Severity: SeverityWarning,
				Code:     CodeTotalMismatch,
				Message:  fmt.Sprintf("%s entered as %.2f differs from computed %.2f by %.2f", labelOf(f), manual, computed[id], delta),
			})
		}
	}
	return issues
}

// checkSignatureSets enforces all-or-nothing signature tuples. If the set
// is conditionally required, that gate is applied first; the first missing
// member (in signature, printed name, date order) carries the issue so the
// UI can focus the right input.
func (v *Validator) checkSignatureSets(store *ValueStore, scope Scope) []Issue {
	var issues []Issue
	for i := range v.schema.SignatureSets {
		set := &v.schema.SignatureSets[i]
		inScope := false
		active := false
		for _, m := range set.Members() {
			if v.inScope(scope, m) {
				inScope = true
			}
			if v.visibility.IsActive(store, m) {
				active = true
			}
		}
		if !inScope || !active {
			continue
		}

		required := false
		if p := v.schema.SetRequiredProgram(set.ID); p != nil {
			required = evalBool(p, store.Env(), false)
		}
		anyPresent := false
		for _, m := range set.Members() {
			if !store.IsBlank(m) {
				anyPresent = true
				break
			}
		}
		if !anyPresent && !required {
			continue
		}
		for _, m := range set.Members() {
			if store.IsBlank(m) {
				f := v.schema.Fields[m]
				issues = append(issues, Issue{
					FieldID:  m,
					Severity: SeverityError,
					Code:     CodeSignatureSetIncomplete,
					Message:  fmt.Sprintf("%s is required to complete the signature", labelOf(f)),
				})
				break
			}
		}
	}
	return issues
}

func labelOf(f *schema.FieldDefinition) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}
