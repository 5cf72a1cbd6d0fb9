package engine

import (
	"github.com/fairlead/disclosure-backend/internal/schema"
)

// Row is one entry of a repeatable row group. ID is the stable row
// identity assigned by the client on first entry; it survives reordering
// and retries.
type Row struct {
	ID     string
	Values map[string]any
}

type valueEntry struct {
	raw    any
	manual bool
}

// ValueStore holds the in-progress values of one form session. It is owned
// by a single session and is not safe for concurrent use; the engine reads
// it synchronously. Computed derivation results live in a side map (see
// DerivationEngine), never here, so a computed value can never be mistaken
// for user input.
type ValueStore struct {
	schema  *schema.Schema
	entries map[string]*valueEntry

	// env caches the predicate environment between mutations so activity
	// checks stay O(1) amortized across a validation pass.
	env map[string]any
}

func NewValueStore(s *schema.Schema) *ValueStore {
	return &ValueStore{schema: s, entries: map[string]*valueEntry{}}
}

// Set records user input for a field. Setting a non-blank value on a
// derived field marks it as a manual override; setting it blank clears the
// override so the computed value shows through again.
func (vs *ValueStore) Set(fieldID string, raw any) {
	f, ok := vs.schema.Fields[fieldID]
	if !ok {
		return
	}
	e := &valueEntry{raw: raw}
	if f.IsDerived() {
		e.manual = !IsBlank(raw)
	}
	vs.entries[fieldID] = e
	vs.env = nil
}

// SetAll applies a flat field-value map, typically one step's payload.
func (vs *ValueStore) SetAll(values map[string]any) {
	for id, raw := range values {
		vs.Set(id, raw)
	}
}

// SetWithOverride restores a persisted entry, trusting the stored override
// flag instead of re-deriving it.
func (vs *ValueStore) SetWithOverride(fieldID string, raw any, manual bool) {
	if _, ok := vs.schema.Fields[fieldID]; !ok {
		return
	}
	vs.entries[fieldID] = &valueEntry{raw: raw, manual: manual}
	vs.env = nil
}

func (vs *ValueStore) Raw(fieldID string) (any, bool) {
	e, ok := vs.entries[fieldID]
	if !ok {
		return nil, false
	}
	return e.raw, true
}

func (vs *ValueStore) IsManualOverride(fieldID string) bool {
	e, ok := vs.entries[fieldID]
	return ok && e.manual
}

func (vs *ValueStore) IsBlank(fieldID string) bool {
	e, ok := vs.entries[fieldID]
	return !ok || IsBlank(e.raw)
}

// Number returns the normalized numeric value of a field; blank and
// missing both read as 0 with ok=true, malformed non-blank input as
// ok=false.
func (vs *ValueStore) Number(fieldID string) (float64, bool) {
	e, ok := vs.entries[fieldID]
	if !ok {
		return 0, true
	}
	return ParseAmount(e.raw)
}

func (vs *ValueStore) Bool(fieldID string) bool {
	e, ok := vs.entries[fieldID]
	if !ok {
		return false
	}
	switch t := e.raw.(type) {
	case bool:
		return t
	case string:
		switch t {
		case "true", "yes", "1", "on":
			return true
		}
	}
	return false
}

func (vs *ValueStore) String(fieldID string) string {
	e, ok := vs.entries[fieldID]
	if !ok {
		return ""
	}
	if s, isStr := e.raw.(string); isStr {
		return s
	}
	return ""
}

// Rows decodes a row group's entries. Each element of the stored slice is
// a map with a "row_id" plus one key per column.
func (vs *ValueStore) Rows(groupID string) []Row {
	e, ok := vs.entries[groupID]
	if !ok {
		return nil
	}
	list, ok := e.raw.([]any)
	if !ok {
		return nil
	}
	out := make([]Row, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := Row{Values: map[string]any{}}
		for k, v := range m {
			if k == "row_id" {
				if s, isStr := v.(string); isStr {
					row.ID = s
				}
				continue
			}
			row.Values[k] = v
		}
		out = append(out, row)
	}
	return out
}

// Env builds the expression environment for visibility and required-if
// predicates: booleans as bool, numeric kinds normalized, everything else
// raw. Boolean fields are always present and read false until answered,
// so a gate like has_joint_owner hides its dependents by default. Other
// unset fields are absent (predicates compile with undefined variables
// allowed). The result is cached until the next write; callers must not
// mutate it.
func (vs *ValueStore) Env() map[string]any {
	if vs.env == nil {
		vs.env = vs.buildEnv()
	}
	return vs.env
}

func (vs *ValueStore) buildEnv() map[string]any {
	env := make(map[string]any, len(vs.entries))
	for id, f := range vs.schema.Fields {
		if f.Kind == schema.KindBoolean {
			env[id] = false
		}
	}
	for id, e := range vs.entries {
		f := vs.schema.Fields[id]
		if f == nil {
			continue
		}
		switch f.Kind {
		case schema.KindBoolean:
			env[id] = vs.Bool(id)
		case schema.KindCurrency, schema.KindPercentage:
			n, ok := ParseAmount(e.raw)
			if !ok {
				n = 0
			}
			env[id] = n
		default:
			env[id] = e.raw
		}
	}
	return env
}
