package plan

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

var knownAssertKinds = map[string]AssertKind{
	string(AssertOK):       AssertOK,
	string(AssertArray):    AssertArray,
	string(AssertEmpty):    AssertEmpty,
	string(AssertNotEmpty): AssertNotEmpty,
	string(AssertString):   AssertString,
	string(AssertNumber):   AssertNumber,
	string(AssertBoolean):  AssertBoolean,
	string(AssertNull):     AssertNull,
	string(AssertExists):   AssertExists,
	string(AssertDate):     AssertDate,
}

// UnmarshalYAML decodes an Assert from its single-key mapping form,
// e.g. `{ok: "$.resp.status == 201"}`. Unknown kinds are rejected here,
// at decode time, never at evaluation time.
func (a *Assert) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]string
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("assert: expected a single-key mapping: %w", err)
	}
	return a.fromMap(m)
}

// UnmarshalJSON decodes an Assert from its JSON single-key object form.
func (a *Assert) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("assert: expected a single-key object: %w", err)
	}
	return a.fromMap(m)
}

func (a *Assert) fromMap(m map[string]string) error {
	if len(m) != 1 {
		return fmt.Errorf("assert: expected exactly one key, got %d", len(m))
	}
	for k, v := range m {
		kind, ok := knownAssertKinds[k]
		if !ok {
			return fmt.Errorf("assert: unknown assertion kind %q", k)
		}
		a.Kind = kind
		a.Arg = v
	}
	return nil
}

// MarshalYAML encodes an Assert back to its single-key mapping form.
func (a Assert) MarshalYAML() (any, error) {
	return map[string]string{string(a.Kind): a.Arg}, nil
}

// MarshalJSON encodes an Assert back to its single-key object form.
func (a Assert) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{string(a.Kind): a.Arg})
}
