package diagnostic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apitoolkit/testkit/pkg/plan"
)

func TestRender_IncludesSourceLabelExprAndAdvice(t *testing.T) {
	err := &plan.AssertionError{
		Advice:      "path did not resolve: $.resp.json.nope",
		SourceLabel: "todos.yaml",
		Expr:        "$.resp.json.nope == 1",
		Span:        [2]int{0, 16},
	}
	out := Render(err)
	assert.Contains(t, out, "todos.yaml")
	assert.Contains(t, out, "nope")
	assert.Contains(t, out, "path did not resolve")
}

func TestRenderExpr_OutOfRangeSpanReturnsPlainExpr(t *testing.T) {
	out := renderExpr("a == b", [2]int{10, 20})
	// no ANSI styling markers expected beyond the base exprStyle wrap;
	// the important property is it doesn't panic and the text survives.
	assert.True(t, strings.Contains(stripANSI(out), "a == b"))
}

func TestRenderExpr_ValidSpanKeepsFullExprText(t *testing.T) {
	out := renderExpr("status == 200", [2]int{0, 6})
	assert.Contains(t, stripANSI(out), "status == 200")
}

// stripANSI removes escape sequences so assertions can check on raw text
// regardless of lipgloss's terminal-capability detection at test time.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
