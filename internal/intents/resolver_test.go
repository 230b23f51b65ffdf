package intents

import (
	"testing"

	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	catalog, err := NewCatalog(testMappings())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewResolver(catalog, 0.7)
}

func TestResolveBelowThresholdForcesNoMapping(t *testing.T) {
	r := newTestResolver(t)

	// Mapping exists, but confidence is too low to act on.
	action, clarify, none := r.Resolve("consultar_paquetes", 0.4, nil)
	if action != nil || clarify != nil {
		t.Fatalf("expected NoMapping, got action=%+v clarify=%+v", action, clarify)
	}
	if none == nil || none.Reason != ReasonLowConfidence {
		t.Errorf("reason = %+v, want low-confidence", none)
	}
}

func TestResolveUnknownIntent(t *testing.T) {
	r := newTestResolver(t)

	action, clarify, none := r.Resolve("cancelar_suscripcion", 0.95, nil)
	if action != nil || clarify != nil {
		t.Fatal("expected NoMapping")
	}
	if none.Reason != ReasonNoMapping {
		t.Errorf("reason = %q, want no-mapping", none.Reason)
	}
}

func TestResolveMissingRequiredEntity(t *testing.T) {
	r := newTestResolver(t)

	entities := []nlu.Entity{{Entity: "date", Value: "2026-09-15"}}
	action, clarify, none := r.Resolve("agendar_cita", 0.88, entities)
	if action != nil || none != nil {
		t.Fatalf("expected NeedsClarification, got action=%+v none=%+v", action, none)
	}
	if len(clarify.MissingEntities) != 1 || clarify.MissingEntities[0] != "email" {
		t.Errorf("missing = %v, want [email]", clarify.MissingEntities)
	}
}

func TestResolveNullValuedEntityCountsAsMissing(t *testing.T) {
	r := newTestResolver(t)

	entities := []nlu.Entity{
		{Entity: "date", Value: "2026-09-15"},
		{Entity: "email", Value: ""},
	}
	_, clarify, _ := r.Resolve("agendar_cita", 0.88, entities)
	if clarify == nil {
		t.Fatal("expected NeedsClarification for empty entity value")
	}
}

func TestResolveBuildsParameters(t *testing.T) {
	r := newTestResolver(t)

	entities := []nlu.Entity{
		{Entity: "date", Value: "2026-09-15"},
		{Entity: "email", Value: "ana@example.com"},
		{Entity: "package_type", Value: "premium"},
		{Entity: "irrelevant", Value: "x"},
	}
	action, clarify, none := r.Resolve("agendar_cita", 0.9, entities)
	if clarify != nil || none != nil {
		t.Fatalf("expected ResolvedAction, got clarify=%+v none=%+v", clarify, none)
	}
	if action.ActionName != "create_booking" || !action.HasEndpoint() {
		t.Errorf("action = %+v", action)
	}
	want := map[string]string{
		"date":         "2026-09-15",
		"email":        "ana@example.com",
		"package_type": "premium",
	}
	if len(action.Parameters) != len(want) {
		t.Fatalf("parameters = %v, want %v", action.Parameters, want)
	}
	for k, v := range want {
		if action.Parameters[k] != v {
			t.Errorf("parameter %s = %q, want %q", k, action.Parameters[k], v)
		}
	}
}

func TestResolveStaticIntentSkipsExecutor(t *testing.T) {
	r := newTestResolver(t)

	action, _, _ := r.Resolve("saludo", 0.99, nil)
	if action == nil {
		t.Fatal("expected resolved action")
	}
	if action.HasEndpoint() {
		t.Error("static intent should have no endpoint")
	}
	if action.StaticDescription == "" {
		t.Error("static intent should carry its description")
	}
}
