// Package planschema generates and validates a JSON Schema document for
// plan documents, as an optional richer pre-flight alongside the
// Decoder's own strict tagged decode.
package planschema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// stepDocument mirrors the on-disk shape of one step mapping — the
// tagged method/URL pair flattened into four optional uppercase fields
// — rather than the decoded plan.Step, whose fields do not correspond
// one-to-one with the document.
type stepDocument struct {
	Title   string              `json:"title,omitempty" jsonschema:"description=Optional human label for the step"`
	Dump    bool                `json:"dump,omitempty" jsonschema:"description=Emit the step's full request/response context for debugging"`
	GET     string              `json:"GET,omitempty"`
	POST    string              `json:"POST,omitempty"`
	PUT     string              `json:"PUT,omitempty"`
	DELETE  string              `json:"DELETE,omitempty"`
	Headers map[string]string   `json:"headers,omitempty"`
	JSON    any                 `json:"json,omitempty" jsonschema:"description=Arbitrary JSON request body"`
	Asserts []map[string]string `json:"asserts,omitempty"`
	Exports map[string]string   `json:"exports,omitempty"`
}

// Generate produces a JSON Schema 2020-12 document describing a plan
// document: a top-level array of step mappings, each carrying exactly
// one of the four method tags.
func Generate() ([]byte, error) {
	r := new(jsonschema.Reflector)
	reflected := r.Reflect(&stepDocument{})

	var stepRef string
	for name, def := range reflected.Definitions {
		stepRef = "#/$defs/" + name
		def.OneOf = []*jsonschema.Schema{
			{Required: []string{"GET"}},
			{Required: []string{"POST"}},
			{Required: []string{"PUT"}},
			{Required: []string{"DELETE"}},
		}
	}

	s := &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          "https://github.com/apitoolkit/testkit/schemas/plan-v1.json",
		Title:       "testkit plan document",
		Description: "Schema for a testkit test-plan YAML/JSON document",
		Type:        "array",
		Items:       &jsonschema.Schema{Ref: stepRef},
		Definitions: reflected.Definitions,
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal plan schema: %w", err)
	}
	return data, nil
}
