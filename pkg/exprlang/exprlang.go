// Package exprlang evaluates the small arithmetic/logical expression
// sub-language an already-interpolated `ok` assertion reduces to:
// numeric/string/boolean literals, comparison and logical operators,
// and parentheses.
package exprlang

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// EvalBool compiles and runs s, requiring it to produce a boolean
// result. s must already have had every {{var}}, $.env.NAME, and
// $.resp.<path> placeholder substituted — exprlang has no knowledge of
// the plan's variable or response context.
func EvalBool(s string) (bool, error) {
	program, err := expr.Compile(s, expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile expression %q: %w", s, err)
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return false, fmt.Errorf("evaluate expression %q: %w", s, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean (got %T)", s, out)
	}
	return b, nil
}
