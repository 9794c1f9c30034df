// Package diagnostic renders an AssertionError as a fixed-width,
// themed report: the source label, the offending expression with its
// failing span underlined, and the advice text.
package diagnostic

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/apitoolkit/testkit/pkg/plan"
)

const reportWidth = 80

var (
	colorRed    = lipgloss.Color("196")
	colorDim    = lipgloss.Color("240")
	colorYellow = lipgloss.Color("214")

	labelStyle   = lipgloss.NewStyle().Foreground(colorDim)
	exprStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	spanStyle    = lipgloss.NewStyle().Foreground(colorYellow).Underline(true).Bold(true)
	adviceStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	reportFrame  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Width(reportWidth - 2).Padding(0, 1)
)

// Render turns err into a boxed, 80-column report. The span names a
// byte range into err.Expr; it is styled distinctly from the rest of
// the expression so the underlined fragment is recognizable to a human
// reading the step log.
func Render(err *plan.AssertionError) string {
	label := err.SourceLabel
	if label == "" {
		label = "<assertion>"
	}

	var body strings.Builder
	body.WriteString(labelStyle.Render("source: " + label))
	body.WriteString("\n\n")
	body.WriteString(renderExpr(err.Expr, err.Span))
	body.WriteString("\n\n")
	body.WriteString(adviceStyle.Render(err.Advice))

	return reportFrame.Render(body.String())
}

// renderExpr styles expr with the [start, end) byte range underlined,
// or the whole string unstyled if the span is out of range.
func renderExpr(expr string, span [2]int) string {
	start, end := span[0], span[1]
	if start < 0 || end > len(expr) || start >= end {
		return exprStyle.Render(expr)
	}
	return exprStyle.Render(expr[:start]) + spanStyle.Render(expr[start:end]) + exprStyle.Render(expr[end:])
}
