package intents

import (
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
)

// Resolution reasons returned alongside NoMapping.
const (
	ReasonLowConfidence = "low-confidence"
	ReasonNoMapping     = "no-mapping"
)

// ResolvedAction is an intent resolved against the catalog with all required
// entities present.
type ResolvedAction struct {
	Intent            string
	ActionName        string
	APIEndpoint       string
	Method            string
	Parameters        map[string]string
	StaticDescription string
}

// HasEndpoint reports whether the action dispatches to an endpoint or is a
// pure static response.
func (a *ResolvedAction) HasEndpoint() bool {
	return a.APIEndpoint != ""
}

// NeedsClarification signals that required entities are missing.
type NeedsClarification struct {
	Intent          string
	MissingEntities []string
}

// NoMapping signals that the intent cannot be acted on.
type NoMapping struct {
	Reason string
}

// Resolver maps a detected intent onto the action catalog.
type Resolver struct {
	catalog   *Catalog
	threshold float64
}

// NewResolver creates a resolver with the configured confidence threshold.
func NewResolver(catalog *Catalog, threshold float64) *Resolver {
	if catalog == nil {
		panic("intents: catalog cannot be nil")
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &Resolver{catalog: catalog, threshold: threshold}
}

// Threshold returns the configured confidence threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve decides how to act on an intent. Exactly one of the three return
// values is non-nil.
//
// Below-threshold confidence forces NoMapping even when a mapping exists, so
// the pipeline never acts on low-confidence guesses.
func (r *Resolver) Resolve(intent string, confidence float64, entities []nlu.Entity) (*ResolvedAction, *NeedsClarification, *NoMapping) {
	if confidence < r.threshold {
		return nil, nil, &NoMapping{Reason: ReasonLowConfidence}
	}

	mapping, ok := r.catalog.Lookup(intent)
	if !ok {
		return nil, nil, &NoMapping{Reason: ReasonNoMapping}
	}

	present := make(map[string]string, len(entities))
	for _, e := range entities {
		if e.Value != "" {
			present[e.Entity] = e.Value
		}
	}

	var missing []string
	for _, name := range mapping.RequiredEntities {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &NeedsClarification{Intent: intent, MissingEntities: missing}, nil
	}

	params := make(map[string]string, len(mapping.RequiredEntities)+len(mapping.OptionalEntities))
	for _, name := range mapping.RequiredEntities {
		params[name] = present[name]
	}
	for _, name := range mapping.OptionalEntities {
		if v, ok := present[name]; ok {
			params[name] = v
		}
	}

	return &ResolvedAction{
		Intent:            intent,
		ActionName:        mapping.ActionName,
		APIEndpoint:       mapping.APIEndpoint,
		Method:            mapping.Method,
		Parameters:        params,
		StaticDescription: mapping.StaticDescription,
	}, nil, nil
}
