package engine

import (
	"reflect"
	"testing"
)

func TestEnvDefaultsBooleansToFalse(t *testing.T) {
	s := testSchema(t)
	store := NewValueStore(s)

	env := store.Env()
	v, present := env["has_joint_owner"]
	if !present || v != false {
		t.Fatalf("unanswered boolean = %v (present=%v), want false", v, present)
	}
	if _, present := env["cash"]; present {
		t.Fatal("unset non-boolean field leaked into env")
	}
}

func TestEnvIsCachedBetweenWrites(t *testing.T) {
	s := testSchema(t)
	store := NewValueStore(s)
	store.Set("cash", "100")

	first := store.Env()
	second := store.Env()
	if reflect.ValueOf(first).Pointer() != reflect.ValueOf(second).Pointer() {
		t.Fatal("env rebuilt without an intervening write")
	}

	store.Set("cash", "250")
	refreshed := store.Env()
	if reflect.ValueOf(first).Pointer() == reflect.ValueOf(refreshed).Pointer() {
		t.Fatal("env not invalidated by a write")
	}
	if refreshed["cash"] != 250.00 {
		t.Fatalf("env cash = %v, want 250.00", refreshed["cash"])
	}
}

func TestEnvNormalizesByKind(t *testing.T) {
	s := testSchema(t)
	store := NewValueStore(s)
	store.SetAll(map[string]any{
		"has_joint_owner": "yes",
		"cash":            "$1,000.00",
	})

	env := store.Env()
	if env["has_joint_owner"] != true {
		t.Fatalf("boolean coercion failed: %v", env["has_joint_owner"])
	}
	if env["cash"] != 1000.00 {
		t.Fatalf("currency normalization failed: %v", env["cash"])
	}
}
