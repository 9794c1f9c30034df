// Package orchestrator drives the step loop: decode → for each step,
// interpolate → dispatch → evaluate assertions → export → append
// result. Only a decode failure aborts a run; transport and assertion
// failures are recorded and the run continues.
package orchestrator

import (
	"context"
	"encoding/json"
	"os"

	"github.com/apitoolkit/testkit/pkg/assert"
	"github.com/apitoolkit/testkit/pkg/diagnostic"
	"github.com/apitoolkit/testkit/pkg/dispatch"
	"github.com/apitoolkit/testkit/pkg/export"
	"github.com/apitoolkit/testkit/pkg/interpolate"
	"github.com/apitoolkit/testkit/pkg/plan"
	"github.com/apitoolkit/testkit/pkg/testlog"
)

// RunConfig collects the per-run dependencies: identity, strictness,
// seed variables, the HTTP client, the logger, and an optional trace
// sink.
type RunConfig struct {
	CollectionID string
	FileLabel    string
	SourceText   string
	StrictEnv    bool
	InitialVars  map[string]any
	HTTPClient   *dispatch.Dispatcher
	Logger       testlog.Logger
	Trace        *TraceWriter

	// EnvLookup resolves $.env.NAME references. Defaults to
	// os.LookupEnv when nil.
	EnvLookup func(string) (string, bool)
}

// RunPlan is the engine's single entry point for external callers (the
// CLI and FFI collaborators): decode sourceText in the given format,
// then execute every step. A malformed document returns a
// *plan.ParseError and no StepResults; any other failure is recorded
// per step and the run completes.
func RunPlan(ctx context.Context, sourceText []byte, format plan.Format, cfg RunConfig) ([]plan.StepResult, error) {
	p, err := plan.Decode(sourceText, format, cfg.FileLabel)
	if err != nil {
		return nil, err
	}
	cfg.SourceText = string(sourceText)
	return Run(ctx, p, cfg)
}

// Run executes p to completion and returns one StepResult per step, in
// document order. A decode failure never reaches Run — callers decode
// with pkg/plan.Decode first (or use RunPlan); Run only ever returns a
// non-nil error for a cancelled context.
func Run(ctx context.Context, p *plan.Plan, cfg RunConfig) ([]plan.StepResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = testlog.NopLogger{}
	}
	lookup := cfg.EnvLookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	dispatcher := cfg.HTTPClient
	if dispatcher == nil {
		dispatcher = dispatch.New(cfg.CollectionID)
	}

	rc := plan.NewRunContext(cfg.FileLabel, cfg.SourceText, logger)
	rc.StrictEnv = cfg.StrictEnv
	for name, v := range cfg.InitialVars {
		rc.SetVariable(name, v)
	}

	if cfg.Trace != nil {
		cfg.Trace.RunStart(cfg.FileLabel, len(p.Steps))
	}

	results := make([]plan.StepResult, 0, len(p.Steps))
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		rc.SetStepIndex(i)
		if cfg.Trace != nil {
			cfg.Trace.StepStart(cfg.FileLabel, i, step.Title)
		}
		result := runStep(ctx, i, step, rc, dispatcher, lookup)
		results = append(results, result)
		if cfg.Trace != nil {
			if err := cfg.Trace.StepComplete(cfg.FileLabel, &result); err != nil {
				logger.Warn("trace write failed", "error", err.Error())
			}
		}
	}
	if cfg.Trace != nil {
		cfg.Trace.RunComplete(cfg.FileLabel, len(results))
	}
	return results, nil
}

func runStep(ctx context.Context, index int, step plan.Step, rc *plan.RunContext, dispatcher *dispatch.Dispatcher, lookup func(string) (string, bool)) plan.StepResult {
	result := plan.StepResult{Title: step.Title, Index: index}
	vars := rc.Variables()

	req, missingVars, missingEnv, bodyErr := resolveRequest(step, vars, lookup)
	for _, m := range missingVars {
		rc.Logger.Warn("unresolved variable placeholder", "name", m.Name, "step", index)
	}
	for _, m := range missingEnv {
		rc.Logger.Warn("unresolved environment placeholder", "name", m.Name, "step", index)
	}
	if rc.StrictEnv && len(missingEnv) > 0 {
		result.StepError = "strict env: missing environment variable " + missingEnv[0].Name
		return result
	}
	if bodyErr != nil {
		result.StepError = "request body is not valid JSON after interpolation: " + bodyErr.Error()
		return result
	}

	rr, terr := dispatcher.Do(ctx, req)
	if terr != nil {
		result.StepError = terr.Error()
		return result
	}
	result.RequestAndResp = rr

	if step.Dump {
		result.StepLog = append(result.StepLog, dumpContext(rr))
	}

	outcomes := make([]plan.AssertOutcome, 0, len(step.Asserts))
	for _, a := range step.Asserts {
		_, missing := interpolate.Interpolate(a.Arg, vars, lookup)
		for _, m := range missing {
			rc.Logger.Warn("unresolved placeholder in assertion", "name", m.Name, "step", index)
		}
		outcome := assert.Evaluate(a, rr, vars, lookup)
		mark := "✅"
		if !outcome.Passed || outcome.Err != nil {
			mark = "❌"
		}
		result.StepLog = append(result.StepLog, mark+" "+string(a.Kind)+" ⮕ "+a.Arg)
		if outcome.Err != nil {
			outcome.Err.SourceLabel = rc.FileLabel
			result.StepLog = append(result.StepLog, diagnostic.Render(outcome.Err))
		}
		outcomes = append(outcomes, outcome)
	}
	result.AssertOutcomes = outcomes

	export.Apply(step.Exports, rr, rc)
	return result
}

// resolveRequest runs ExpandVariables then ExpandEnv over the URL, the
// headers, and the serialized JSON body, keeping variable-misses and
// env-misses separate so the caller can apply RunContext.StrictEnv to
// only the latter. The body is interpolated through its serialized
// text and reparsed; a reparse failure (a still-present placeholder
// breaking the JSON) is returned as bodyErr.
func resolveRequest(step plan.Step, vars map[string]any, lookup func(string) (string, bool)) (req plan.Request, missingVars, missingEnv []interpolate.MissingRef, bodyErr error) {
	expand := func(s string) string {
		s1, mv := interpolate.ExpandVariables(s, vars)
		missingVars = append(missingVars, mv...)
		s2, me := interpolate.ExpandEnv(s1, lookup)
		missingEnv = append(missingEnv, me...)
		return s2
	}

	url := expand(step.URL)

	headers := make(map[string]string, len(step.Headers))
	for name, tmpl := range step.Headers {
		headers[name] = expand(tmpl)
	}

	req = plan.Request{Method: step.Method, URL: url, Headers: headers}
	if step.HasJSON {
		body, err := json.Marshal(step.JSON)
		if err != nil {
			return req, missingVars, missingEnv, err
		}
		expanded := expand(string(body))
		var reparsed any
		if err := json.Unmarshal([]byte(expanded), &reparsed); err != nil {
			return req, missingVars, missingEnv, err
		}
		req.JSON = reparsed
	}
	return req, missingVars, missingEnv, nil
}

func dumpContext(rr *plan.RequestAndResponse) string {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return "dump: <unrenderable: " + err.Error() + ">"
	}
	return "dump:\n" + string(b)
}
