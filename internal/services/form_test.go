package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/fairlead/disclosure-backend/internal/pkg/errors"
	"github.com/fairlead/disclosure-backend/internal/schema"
	"github.com/fairlead/disclosure-backend/internal/types"
)

func formTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build("test", "", []*schema.FieldDefinition{
		{ID: "cash", Kind: schema.KindCurrency, Step: 1},
		{ID: "brokerage", Kind: schema.KindCurrency, Step: 1},
		{
			ID: "liquid_subtotal", Kind: schema.KindCurrency, Step: 1,
			Derive: &schema.Derivation{
				DependsOn: []string{"cash", "brokerage"},
				Expr:      "cash + brokerage",
			},
		},
		{
			ID: "illiquid_assets", Kind: schema.KindRowGroup, Step: 2,
			Columns: []schema.RowColumn{
				{ID: "description", Kind: schema.KindText},
				{ID: "amount", Kind: schema.KindCurrency},
			},
			PairedColumns: []string{"description", "amount"},
			AmountColumn:  "amount",
		},
	}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return s
}

func TestToFormValuesOverrideFlag(t *testing.T) {
	fs := &formService{schema: formTestSchema(t)}
	recordID := uuid.New()

	rows, err := fs.toFormValues(recordID, map[string]any{
		"cash":            "1000",
		"liquid_subtotal": "1500.02",
	})
	if err != nil {
		t.Fatalf("toFormValues failed: %v", err)
	}
	byField := map[string]*types.FormValue{}
	for _, r := range rows {
		byField[r.FieldID] = r
	}
	if byField["cash"].ManualOverride {
		t.Fatal("leaf value marked as override")
	}
	if !byField["liquid_subtotal"].ManualOverride {
		t.Fatal("typed-over derived value not marked as override")
	}

	// Clearing the derived field clears the override flag too.
	rows, err = fs.toFormValues(recordID, map[string]any{"liquid_subtotal": ""})
	if err != nil {
		t.Fatalf("toFormValues failed: %v", err)
	}
	if rows[0].ManualOverride {
		t.Fatal("blank derived value still marked as override")
	}
}

func TestToFormValuesRowGroups(t *testing.T) {
	fs := &formService{schema: formTestSchema(t)}
	recordID := uuid.New()

	rows, err := fs.toFormValues(recordID, map[string]any{
		"illiquid_assets": []any{
			map[string]any{"row_id": "r1", "description": "farm", "amount": "5000"},
			map[string]any{"row_id": "r2", "description": "art", "amount": "1200"},
		},
	})
	if err != nil {
		t.Fatalf("toFormValues failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	seen := map[string]bool{}
	for _, r := range rows {
		if r.FieldID != "illiquid_assets" {
			t.Fatalf("row stored under field %q", r.FieldID)
		}
		seen[r.RowID] = true
	}
	if !seen["r1"] || !seen["r2"] {
		t.Fatalf("row ids not preserved: %v", seen)
	}
}

func TestToFormValuesRejectsBadInput(t *testing.T) {
	fs := &formService{schema: formTestSchema(t)}
	recordID := uuid.New()

	cases := []struct {
		name   string
		values map[string]any
	}{
		{"unknown field", map[string]any{"net_wroth": "1"}},
		{"row without row_id", map[string]any{
			"illiquid_assets": []any{map[string]any{"description": "farm", "amount": "5000"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fs.toFormValues(recordID, tc.values); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestProjectValuesRoundTrip(t *testing.T) {
	s := formTestSchema(t)
	fs := &formService{schema: s}
	recordID := uuid.New()
	in := map[string]any{
		"cash":      "1,000.00",
		"brokerage": 500.0,
		"illiquid_assets": []any{
			map[string]any{"row_id": "r1", "description": "farm", "amount": "5000"},
		},
	}

	rows, err := fs.toFormValues(recordID, in)
	if err != nil {
		t.Fatalf("toFormValues failed: %v", err)
	}
	out := projectValues(s, rows)

	if out["cash"] != "1,000.00" {
		t.Fatalf("cash = %v, want raw string preserved", out["cash"])
	}
	if out["brokerage"] != 500.0 {
		t.Fatalf("brokerage = %v, want 500.0", out["brokerage"])
	}
	group, ok := out["illiquid_assets"].([]any)
	if !ok || len(group) != 1 {
		t.Fatalf("illiquid_assets = %#v, want one reassembled row", out["illiquid_assets"])
	}
	row, _ := group[0].(map[string]any)
	if row["row_id"] != "r1" || row["amount"] != "5000" {
		t.Fatalf("row = %#v, want row_id and cells preserved", row)
	}
}

func TestProjectValuesSkipsUndecodable(t *testing.T) {
	s := formTestSchema(t)
	good, _ := json.Marshal("100")
	values := []*types.FormValue{
		{FieldID: "cash", Raw: good},
		{FieldID: "brokerage", Raw: []byte("{not json")},
		{FieldID: "retired_field", Raw: good},
	}
	out := projectValues(s, values)
	if !reflect.DeepEqual(out, map[string]any{"cash": "100"}) {
		t.Fatalf("projectValues = %#v, want only the decodable known field", out)
	}
}

func TestRowIDsOf(t *testing.T) {
	got := rowIDsOf([]any{
		map[string]any{"row_id": "r1"},
		map[string]any{"row_id": "r2", "amount": "5"},
		map[string]any{"amount": "no id"},
		"not a row",
	})
	if !reflect.DeepEqual(got, []string{"r1", "r2"}) {
		t.Fatalf("rowIDsOf = %v, want [r1 r2]", got)
	}
	if rowIDsOf("scalar") != nil {
		t.Fatal("non-list payload should yield no row ids")
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", pkgerrors.ErrNotFound, false},
		{"wrapped not found", fmt.Errorf("load: %w", pkgerrors.ErrNotFound), false},
		{"invalid state", fmt.Errorf("submit: %w", pkgerrors.ErrInvalidState), false},
		{"invalid argument", fmt.Errorf("step: %w", pkgerrors.ErrInvalidArgument), false},
		{"io failure", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryable(tc.err); got != tc.want {
				t.Fatalf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
