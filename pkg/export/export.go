// Package export resolves a step's `exports` mapping into the
// run-scoped variable table after assertions have been evaluated.
package export

import (
	"strings"

	"github.com/apitoolkit/testkit/pkg/jsonpath"
	"github.com/apitoolkit/testkit/pkg/plan"
)

const (
	headerPrefix = "$.res.header."
	statusPrefix = "$.res.status"
)

// Apply iterates entries in input order and writes each resolved value
// into rc's variable table. A failure to resolve one entry is logged
// and does not stop the others or fail the step.
func Apply(entries []plan.ExportEntry, rr *plan.RequestAndResponse, rc *plan.RunContext) {
	for _, e := range entries {
		v, ok := resolve(e.Path, rr)
		if !ok {
			rc.Logger.Warn("export path did not resolve", "name", e.Name, "path", e.Path)
			continue
		}
		rc.SetVariable(e.Name, v)
	}
}

func resolve(path string, rr *plan.RequestAndResponse) (any, bool) {
	switch {
	case strings.HasPrefix(path, headerPrefix):
		name := path[len(headerPrefix):]
		vals, ok := rr.HeaderValues(name)
		if !ok {
			return nil, false
		}
		return strings.Join(vals, ""), true
	case strings.HasPrefix(path, statusPrefix):
		return float64(rr.Response.StatusCode), true
	default:
		v, err := jsonpath.Select(rr.Context(), path)
		if err != nil {
			return nil, false
		}
		return v, true
	}
}
