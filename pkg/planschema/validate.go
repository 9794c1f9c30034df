package planschema

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError is one leaf failure from ValidateDocument: a phase,
// an instance path, and a message.
type ValidationError struct {
	Phase   string `json:"phase"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
}

// ValidateDocument validates a raw (pre-decode) plan document against
// the generated schema, surfacing every leaf failure rather than the
// single error gopkg.in/yaml.v3's strict decode stops at. It is always
// optional: Decode's hand-written tagged decode remains the source of
// truth for whether a document is accepted.
func ValidateDocument(raw []byte) ([]*ValidationError, error) {
	schemaJSON, err := Generate()
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal generated schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("plan-v1.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("plan-v1.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []*ValidationError{{Phase: "structural", Message: err.Error()}}, nil
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{{Phase: "semantic", Message: err.Error()}}, nil
		}
		var errs []*ValidationError
		for _, cause := range flatten(ve) {
			errs = append(errs, &ValidationError{
				Phase:   "semantic",
				Path:    strings.Join(cause.InstanceLocation, "/"),
				Message: fmt.Sprintf("%v", cause.ErrorKind),
			})
		}
		return errs, nil
	}
	return nil, nil
}

func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}
