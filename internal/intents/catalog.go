package intents

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Mapping ties an intent name to a business action or a static response.
// Mappings are loaded once at startup and read-only for the process lifetime.
type Mapping struct {
	Intent            string   `json:"intent"`
	ActionName        string   `json:"actionName"`
	APIEndpoint       string   `json:"apiEndpoint,omitempty"`
	Method            string   `json:"method,omitempty"`
	RequiredEntities  []string `json:"requiredEntities,omitempty"`
	OptionalEntities  []string `json:"optionalEntities,omitempty"`
	StaticDescription string   `json:"staticDescription,omitempty"`
}

// HasEndpoint reports whether the mapping dispatches to an action endpoint.
// Pure conversational intents (greeting, goodbye, help) carry only a static
// description and skip the executor.
func (m *Mapping) HasEndpoint() bool {
	return strings.TrimSpace(m.APIEndpoint) != ""
}

// Catalog is the immutable set of intent-action mappings.
type Catalog struct {
	mappings map[string]Mapping
}

// NewCatalog builds a catalog from the provided mappings.
func NewCatalog(mappings []Mapping) (*Catalog, error) {
	byIntent := make(map[string]Mapping, len(mappings))
	for _, m := range mappings {
		intent := strings.TrimSpace(m.Intent)
		if intent == "" {
			return nil, fmt.Errorf("intents: mapping with empty intent name")
		}
		if _, dup := byIntent[intent]; dup {
			return nil, fmt.Errorf("intents: duplicate mapping for intent %q", intent)
		}
		if m.ActionName == "" {
			return nil, fmt.Errorf("intents: mapping %q missing actionName", intent)
		}
		if !m.HasEndpoint() && m.StaticDescription == "" {
			return nil, fmt.Errorf("intents: mapping %q has neither endpoint nor static description", intent)
		}
		if m.Method == "" {
			m.Method = "POST"
		}
		byIntent[intent] = m
	}
	return &Catalog{mappings: byIntent}, nil
}

// LoadCatalog reads mappings from a JSON file at process start.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intents: read mapping file: %w", err)
	}
	var mappings []Mapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("intents: parse mapping file: %w", err)
	}
	return NewCatalog(mappings)
}

// Lookup returns the mapping for an intent, if one exists.
func (c *Catalog) Lookup(intent string) (Mapping, bool) {
	m, ok := c.mappings[intent]
	return m, ok
}

// Len returns the number of configured mappings.
func (c *Catalog) Len() int {
	return len(c.mappings)
}
