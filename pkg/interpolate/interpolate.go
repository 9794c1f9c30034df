// Package interpolate expands the three placeholder grammars a plan
// template string may contain: local/exported variables, environment
// variables, and (in assertion expressions only) response-path
// references resolved through pkg/jsonpath.
package interpolate

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/apitoolkit/testkit/pkg/jsonpath"
	"github.com/apitoolkit/testkit/pkg/plan"
)

// MissingRef records one placeholder that could not be resolved. The
// placeholder is left in place in the output string; callers that need
// strictness (e.g. JSON body parsing) inspect the returned slice.
type MissingRef struct {
	Name string
	Span [2]int
}

var variableRE = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// ExpandVariables replaces every {{NAME}} occurrence with the
// stringified value of vars[NAME]. String values are inserted with
// their surrounding quotes stripped; every other JSON value is
// inserted as its compact JSON text. Unresolved placeholders are left
// untouched and reported.
func ExpandVariables(s string, vars map[string]any) (string, []MissingRef) {
	var missing []MissingRef
	out := variableRE.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-2]
		v, ok := vars[name]
		if !ok {
			idx := strings.Index(s, match)
			missing = append(missing, MissingRef{Name: name, Span: [2]int{idx, idx + len(match)}})
			return match
		}
		return formatScalar(v)
	})
	return out, missing
}

var envRE = regexp.MustCompile(`\$\.env\.([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv replaces every $.env.NAME occurrence using lookup. Missing
// variables are left in place and reported, mirroring ExpandVariables.
func ExpandEnv(s string, lookup func(string) (string, bool)) (string, []MissingRef) {
	var missing []MissingRef
	out := envRE.ReplaceAllStringFunc(s, func(match string) string {
		name := match[len("$.env."):]
		v, ok := lookup(name)
		if !ok {
			idx := strings.Index(s, match)
			missing = append(missing, MissingRef{Name: name, Span: [2]int{idx, idx + len(match)}})
			return match
		}
		return v
	})
	return out, missing
}

var respPathRE = regexp.MustCompile(`\$\.resp\.[A-Za-z0-9_.\-\[\]*]+`)

// ExpandResponsePath replaces every $.resp.<path> occurrence in an
// assertion expression with the value JSONPath selects from ctx's
// combined {req, resp} view. A $.resp.headers.* selection whose value
// is an array is joined with ",". The first unresolved
// reference stops expansion and is returned as an AssertionError
// naming the path and its byte span in the original (pre-substitution)
// expr text.
func ExpandResponsePath(expr string, rr *plan.RequestAndResponse) (string, *plan.AssertionError) {
	ctx := rr.Context()
	var outerErr *plan.AssertionError
	out := respPathRE.ReplaceAllStringFunc(expr, func(match string) string {
		if outerErr != nil {
			return match
		}
		v, err := jsonpath.Select(ctx, match)
		if err != nil {
			idx := strings.Index(expr, match)
			outerErr = &plan.AssertionError{
				Advice: "could not resolve response path " + match + ": " + err.Error(),
				Expr:   expr,
				Span:   [2]int{idx, idx + len(match)},
			}
			return match
		}
		return formatValue(v)
	})
	if outerErr != nil {
		return expr, outerErr
	}
	return out, nil
}

// Interpolate composes ExpandVariables then ExpandEnv, the fixed order
// for plain template strings (headers, URL, JSON body text). It does
// not run ExpandResponsePath — only assertion expressions see response
// paths, via ExpandResponsePath directly.
func Interpolate(s string, vars map[string]any, lookup func(string) (string, bool)) (string, []MissingRef) {
	s1, missingVars := ExpandVariables(s, vars)
	s2, missingEnv := ExpandEnv(s1, lookup)
	return s2, append(missingVars, missingEnv...)
}

// formatValue renders v the way response-path substitution does:
// strings lose their surrounding quotes, a []any
// (the wildcard-select case) is comma-joined element-wise, and every
// other JSON value is inserted as compact JSON text.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatScalar(e)
		}
		return strings.Join(parts, ",")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// formatScalar renders v the way variable substitution does: strings
// lose their surrounding quotes and every other JSON value, arrays
// included, is inserted as compact JSON text.
func formatScalar(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
