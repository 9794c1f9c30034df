package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Decode deserializes a UTF-8 plan document (YAML or JSON) into a Plan.
// fileLabel is used only to annotate a returned ParseError.
func Decode(data []byte, format Format, fileLabel string) (*Plan, error) {
	switch format {
	case FormatYAML:
		return decodeYAML(data, fileLabel)
	case FormatJSON:
		return decodeJSON(data, fileLabel)
	default:
		return nil, &ParseError{FileLabel: fileLabel, Message: fmt.Sprintf("unknown plan format %q", format)}
	}
}

// DecodeYAML is a convenience wrapper around Decode for YAML documents.
func DecodeYAML(data []byte, fileLabel string) (*Plan, error) {
	return decodeYAML(data, fileLabel)
}

// DecodeJSON is a convenience wrapper around Decode for JSON documents.
func DecodeJSON(data []byte, fileLabel string) (*Plan, error) {
	return decodeJSON(data, fileLabel)
}

func decodeYAML(data []byte, fileLabel string) (*Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Plan{}, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var steps []Step
	if err := dec.Decode(&steps); err != nil {
		return nil, &ParseError{
			FileLabel: fileLabel,
			Line:      extractYAMLLine(err),
			Message:   err.Error(),
		}
	}
	return &Plan{Steps: steps}, nil
}

func decodeJSON(data []byte, fileLabel string) (*Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Plan{}, nil
	}
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, &ParseError{
			FileLabel: fileLabel,
			Message:   err.Error(),
		}
	}
	return &Plan{Steps: steps}, nil
}

var yamlLineRE = regexp.MustCompile(`line (\d+)`)

// extractYAMLLine best-effort parses the line number gopkg.in/yaml.v3
// embeds in its TypeError/decode error messages.
func extractYAMLLine(err error) int {
	m := yamlLineRE.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return n
}

var methodTags = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
}

// UnmarshalYAML decodes a Step from its mapping form: title/dump are
// plain scalars, exactly one of GET/POST/PUT/DELETE pairs the method
// with its URL, and headers/json/asserts/exports are the remaining
// optional fields.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("step: expected a mapping, got %v", node.Kind)
	}
	methodSeen := false
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch {
		case key == "title":
			if err := val.Decode(&s.Title); err != nil {
				return fmt.Errorf("step.title: %w", err)
			}
		case key == "dump":
			if err := val.Decode(&s.Dump); err != nil {
				return fmt.Errorf("step.dump: %w", err)
			}
		case methodTags[key]:
			if methodSeen {
				return fmt.Errorf("step: more than one method tag present (found %s after already seeing a method)", key)
			}
			methodSeen = true
			s.Method = HTTPMethod(key)
			if err := val.Decode(&s.URL); err != nil {
				return fmt.Errorf("step.%s: %w", key, err)
			}
		case key == "headers":
			var h map[string]string
			if err := val.Decode(&h); err != nil {
				return fmt.Errorf("step.headers: %w", err)
			}
			s.Headers = h
		case key == "json":
			var v any
			if err := val.Decode(&v); err != nil {
				return fmt.Errorf("step.json: %w", err)
			}
			s.JSON = v
			s.HasJSON = true
		case key == "asserts":
			var a []Assert
			if err := val.Decode(&a); err != nil {
				return fmt.Errorf("step.asserts: %w", err)
			}
			s.Asserts = a
		case key == "exports":
			entries, err := orderedStringMapYAML(val)
			if err != nil {
				return fmt.Errorf("step.exports: %w", err)
			}
			s.Exports = entries
		default:
			return fmt.Errorf("step: unknown field %q", key)
		}
	}
	if !methodSeen {
		return fmt.Errorf("step: missing method/url (exactly one of GET, POST, PUT, DELETE is required)")
	}
	return nil
}

// orderedStringMapYAML decodes a YAML mapping node of string->string
// into an ordered []ExportEntry. Exports resolve in document order,
// which a plain Go map cannot preserve.
func orderedStringMapYAML(node *yaml.Node) ([]ExportEntry, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping, got %v", node.Kind)
	}
	entries := make([]ExportEntry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var path string
		if err := node.Content[i+1].Decode(&path); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		entries = append(entries, ExportEntry{Name: name, Path: path})
	}
	return entries, nil
}

// UnmarshalJSON decodes a Step from its JSON object form, mirroring
// UnmarshalYAML field-for-field so YAML and JSON plans produce
// identical Plan models.
func (s *Step) UnmarshalJSON(data []byte) error {
	fields, err := orderedJSONObject(data)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	methodSeen := false
	for _, f := range fields {
		switch {
		case f.Key == "title":
			if err := json.Unmarshal(f.Value, &s.Title); err != nil {
				return fmt.Errorf("step.title: %w", err)
			}
		case f.Key == "dump":
			if err := json.Unmarshal(f.Value, &s.Dump); err != nil {
				return fmt.Errorf("step.dump: %w", err)
			}
		case methodTags[f.Key]:
			if methodSeen {
				return fmt.Errorf("step: more than one method tag present (found %s after already seeing a method)", f.Key)
			}
			methodSeen = true
			s.Method = HTTPMethod(f.Key)
			if err := json.Unmarshal(f.Value, &s.URL); err != nil {
				return fmt.Errorf("step.%s: %w", f.Key, err)
			}
		case f.Key == "headers":
			var h map[string]string
			if err := json.Unmarshal(f.Value, &h); err != nil {
				return fmt.Errorf("step.headers: %w", err)
			}
			s.Headers = h
		case f.Key == "json":
			var v any
			if err := json.Unmarshal(f.Value, &v); err != nil {
				return fmt.Errorf("step.json: %w", err)
			}
			s.JSON = v
			s.HasJSON = true
		case f.Key == "asserts":
			var a []Assert
			if err := json.Unmarshal(f.Value, &a); err != nil {
				return fmt.Errorf("step.asserts: %w", err)
			}
			s.Asserts = a
		case f.Key == "exports":
			entries, err := orderedStringMapJSON(f.Value)
			if err != nil {
				return fmt.Errorf("step.exports: %w", err)
			}
			s.Exports = entries
		default:
			return fmt.Errorf("step: unknown field %q", f.Key)
		}
	}
	if !methodSeen {
		return fmt.Errorf("step: missing method/url (exactly one of GET, POST, PUT, DELETE is required)")
	}
	return nil
}

type jsonField struct {
	Key   string
	Value json.RawMessage
}

// orderedJSONObject scans a JSON object's top-level keys in document
// order using token-based decoding, since encoding/json's map decode
// does not preserve key order.
func orderedJSONObject(data []byte) ([]jsonField, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}
	var fields []jsonField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		fields = append(fields, jsonField{Key: key, Value: raw})
	}
	return fields, nil
}

func orderedStringMapJSON(data json.RawMessage) ([]ExportEntry, error) {
	fields, err := orderedJSONObject(data)
	if err != nil {
		return nil, err
	}
	entries := make([]ExportEntry, 0, len(fields))
	for _, f := range fields {
		var path string
		if err := json.Unmarshal(f.Value, &path); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Key, err)
		}
		entries = append(entries, ExportEntry{Name: f.Key, Path: path})
	}
	return entries, nil
}

// MarshalJSON encodes a Step back to its JSON object form, used by the
// round-trip testable property (decode -> re-encode -> decode).
func (s Step) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	writeField := func(key string, val any) error {
		if !first {
			b.WriteByte(',')
		}
		first = false
		keyBytes, _ := json.Marshal(key)
		b.Write(keyBytes)
		b.WriteByte(':')
		valBytes, err := json.Marshal(val)
		if err != nil {
			return err
		}
		b.Write(valBytes)
		return nil
	}
	if s.Title != "" {
		if err := writeField("title", s.Title); err != nil {
			return nil, err
		}
	}
	if s.Dump {
		if err := writeField("dump", s.Dump); err != nil {
			return nil, err
		}
	}
	if err := writeField(string(s.Method), s.URL); err != nil {
		return nil, err
	}
	if len(s.Headers) > 0 {
		if err := writeField("headers", s.Headers); err != nil {
			return nil, err
		}
	}
	if s.HasJSON {
		if err := writeField("json", s.JSON); err != nil {
			return nil, err
		}
	}
	if len(s.Asserts) > 0 {
		if err := writeField("asserts", s.Asserts); err != nil {
			return nil, err
		}
	}
	if len(s.Exports) > 0 {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(`"exports":{`)
		for i, e := range s.Exports {
			if i > 0 {
				b.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(e.Name)
			b.Write(keyBytes)
			b.WriteByte(':')
			valBytes, _ := json.Marshal(e.Path)
			b.Write(valBytes)
		}
		b.WriteByte('}')
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
