package assert

import (
	"fmt"
	"strings"
	"time"

	"github.com/apitoolkit/testkit/pkg/plan"
)

// unixDirectives maps the strftime-style directives a `date` assertion
// format may use to Go's reference-time layout tokens.
var unixDirectives = map[byte]string{
	'Y': "2006",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
}

// goLayout translates a Unix-style date format (e.g. "%Y-%m-%d") into a
// Go reference-time layout string (e.g. "2006-01-02").
func goLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			if layout, ok := unixDirectives[format[i+1]]; ok {
				b.WriteString(layout)
				i++
				continue
			}
		}
		b.WriteByte(format[i])
	}
	return b.String()
}

func evalDate(a plan.Assert, rr *plan.RequestAndResponse) plan.AssertOutcome {
	path, format, ok := a.DateParts()
	if !ok {
		return plan.AssertOutcome{
			Kind: a.Kind,
			Expr: a.Arg,
			Err: &plan.AssertionError{
				Advice: fmt.Sprintf("date assertion argument %q must be \"<path> <format>\"", a.Arg),
				Expr:   a.Arg,
				Span:   [2]int{0, len(a.Arg)},
			},
		}
	}
	v, err := selectPath(rr, path)
	if err != nil {
		return missingPathOutcome(a, path, err)
	}
	s, isStr := v.(string)
	if !isStr {
		return plan.AssertOutcome{
			Kind: a.Kind,
			Expr: a.Arg,
			Err: &plan.AssertionError{
				Advice: fmt.Sprintf("path %q did not select a string (got %T)", path, v),
				Expr:   a.Arg,
				Span:   spanOf(a.Arg, path),
			},
		}
	}

	layout := goLayout(format)
	// Try as a full date-time first, then fall back to a bare date.
	if _, err := time.Parse(layout, s); err == nil {
		return plan.AssertOutcome{Kind: a.Kind, Expr: a.Arg, Passed: true}
	}
	dateOnlyLayout := goLayout(dateOnlyFormat(format))
	if _, err := time.Parse(dateOnlyLayout, s); err == nil {
		return plan.AssertOutcome{Kind: a.Kind, Expr: a.Arg, Passed: true}
	}
	return plan.AssertOutcome{
		Kind: a.Kind,
		Expr: a.Arg,
		Err: &plan.AssertionError{
			Advice: fmt.Sprintf("value %q does not match date format %q: date parse failed", s, format),
			Expr:   a.Arg,
			Span:   spanOf(a.Arg, format),
		},
	}
}

// dateOnlyFormat strips time-of-day directives from format, used for
// the second (date-only) parse attempt.
func dateOnlyFormat(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			switch format[i+1] {
			case 'H', 'M', 'S':
				i++
				continue
			}
		}
		b.WriteByte(format[i])
	}
	return strings.TrimRight(b.String(), " T:")
}
