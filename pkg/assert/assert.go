// Package assert evaluates a single Assert against a step's completed
// request/response context, producing a three-state AssertOutcome
// (true, false, or an AssertionError diagnostic) — never a panic.
package assert

import (
	"fmt"
	"strings"

	"github.com/apitoolkit/testkit/pkg/exprlang"
	"github.com/apitoolkit/testkit/pkg/interpolate"
	"github.com/apitoolkit/testkit/pkg/jsonpath"
	"github.com/apitoolkit/testkit/pkg/plan"
)

// Evaluate runs a against rr, expanding vars/env (and, for `ok`,
// response-path references) as needed. lookup resolves $.env.NAME; pass
// os.LookupEnv in production code.
func Evaluate(a plan.Assert, rr *plan.RequestAndResponse, vars map[string]any, lookup func(string) (string, bool)) plan.AssertOutcome {
	switch a.Kind {
	case plan.AssertOK:
		return evalOK(a, rr, vars, lookup)
	case plan.AssertArray, plan.AssertString, plan.AssertNumber, plan.AssertBoolean, plan.AssertNull:
		return evalTyped(a, rr)
	case plan.AssertEmpty:
		return evalEmpty(a, rr, true)
	case plan.AssertNotEmpty:
		return evalEmpty(a, rr, false)
	case plan.AssertExists:
		return evalExists(a, rr)
	case plan.AssertDate:
		return evalDate(a, rr)
	default:
		return plan.AssertOutcome{
			Kind: a.Kind,
			Expr: a.Arg,
			Err: &plan.AssertionError{
				Advice: fmt.Sprintf("unknown assertion kind %q", a.Kind),
				Expr:   a.Arg,
				Span:   [2]int{0, len(a.Arg)},
			},
		}
	}
}

func evalOK(a plan.Assert, rr *plan.RequestAndResponse, vars map[string]any, lookup func(string) (string, bool)) plan.AssertOutcome {
	expanded, missing := interpolate.Interpolate(a.Arg, vars, lookup)
	_ = missing // missing refs are logged by the caller, not fatal here
	resolved, aerr := interpolate.ExpandResponsePath(expanded, rr)
	if aerr != nil {
		// aerr's span is on the expanded text; re-anchor it on the
		// authored expression, where the response path appears unchanged.
		aerr.Span = spanOf(a.Arg, expanded[aerr.Span[0]:aerr.Span[1]])
		aerr.Expr = a.Arg
		return plan.AssertOutcome{Kind: a.Kind, Expr: a.Arg, Err: aerr}
	}
	passed, err := exprlang.EvalBool(resolved)
	if err != nil {
		return plan.AssertOutcome{
			Kind: a.Kind,
			Expr: a.Arg,
			Err: &plan.AssertionError{
				Advice: fmt.Sprintf("expression %q did not evaluate to a boolean: %v", resolved, err),
				Expr:   a.Arg,
				Span:   [2]int{0, len(a.Arg)},
			},
		}
	}
	return plan.AssertOutcome{Kind: a.Kind, Expr: a.Arg, Passed: passed}
}

func selectPath(rr *plan.RequestAndResponse, path string) (any, error) {
	return jsonpath.Select(rr.Context(), path)
}

// spanOf locates fragment inside the original expression text so the
// diagnostic reporter can underline it. Falls back to the whole
// expression if the fragment is not found.
func spanOf(expr, fragment string) [2]int {
	idx := strings.Index(expr, fragment)
	if idx < 0 {
		return [2]int{0, len(expr)}
	}
	return [2]int{idx, idx + len(fragment)}
}

func missingPathOutcome(a plan.Assert, path string, err error) plan.AssertOutcome {
	return plan.AssertOutcome{
		Kind: a.Kind,
		Expr: a.Arg,
		Err: &plan.AssertionError{
			Advice: fmt.Sprintf("path %q could not be resolved: %v", path, err),
			Expr:   a.Arg,
			Span:   spanOf(a.Arg, path),
		},
	}
}

func evalTyped(a plan.Assert, rr *plan.RequestAndResponse) plan.AssertOutcome {
	v, err := selectPath(rr, a.Arg)
	if err != nil {
		return missingPathOutcome(a, a.Arg, err)
	}
	var passed bool
	switch a.Kind {
	case plan.AssertArray:
		_, passed = v.([]any)
	case plan.AssertString:
		_, passed = v.(string)
	case plan.AssertNumber:
		_, passed = v.(float64)
	case plan.AssertBoolean:
		_, passed = v.(bool)
	case plan.AssertNull:
		passed = v == nil
	}
	return plan.AssertOutcome{Kind: a.Kind, Expr: a.Arg, Passed: passed}
}

func evalEmpty(a plan.Assert, rr *plan.RequestAndResponse, wantEmpty bool) plan.AssertOutcome {
	v, err := selectPath(rr, a.Arg)
	if err != nil {
		return missingPathOutcome(a, a.Arg, err)
	}
	var length int
	switch x := v.(type) {
	case []any:
		length = len(x)
	case string:
		length = len(x)
	default:
		return plan.AssertOutcome{
			Kind: a.Kind,
			Expr: a.Arg,
			Err: &plan.AssertionError{
				Advice: fmt.Sprintf("path %q is neither an array nor a string (got %T)", a.Arg, v),
				Expr:   a.Arg,
				Span:   [2]int{0, len(a.Arg)},
			},
		}
	}
	passed := (length == 0) == wantEmpty
	return plan.AssertOutcome{Kind: a.Kind, Expr: a.Arg, Passed: passed}
}

func evalExists(a plan.Assert, rr *plan.RequestAndResponse) plan.AssertOutcome {
	_, err := selectPath(rr, a.Arg)
	return plan.AssertOutcome{Kind: a.Kind, Expr: a.Arg, Passed: err == nil}
}
