package plan

import "github.com/apitoolkit/testkit/pkg/testlog"

// RunContext is the mutable state threaded through one plan execution:
// the exported variable table steps read from and write to, the
// current step index, and the run's ambient
// dependencies (logger, strict-env flag).
//
// A RunContext is owned by a single run; the orchestrator does not
// share one RunContext across concurrent runs, and steps within a run
// execute strictly in document order.
type RunContext struct {
	FileLabel  string
	SourceText string

	// StrictEnv controls $.env.<NAME> misses: when true, an unset
	// environment variable in the step's URL, headers or JSON body fails
	// the step before dispatch; when false the placeholder text is left
	// in the string and a log entry is emitted. $.env references inside
	// assertion expressions are never failed by StrictEnv. Defaults to
	// false (lenient).
	StrictEnv bool

	Logger testlog.Logger

	stepIndex int
	variables map[string]any
}

// NewRunContext creates a RunContext with an empty variable table. A
// nil logger is replaced with testlog.NopLogger{}.
func NewRunContext(fileLabel, sourceText string, logger testlog.Logger) *RunContext {
	if logger == nil {
		logger = testlog.NopLogger{}
	}
	return &RunContext{
		FileLabel:  fileLabel,
		SourceText: sourceText,
		Logger:     logger,
		variables:  map[string]any{},
	}
}

// StepIndex returns the index of the step currently executing.
func (rc *RunContext) StepIndex() int { return rc.stepIndex }

// SetStepIndex advances the context to a new step, used by the
// orchestrator between steps.
func (rc *RunContext) SetStepIndex(i int) { rc.stepIndex = i }

// Variable looks up an exported variable by name.
func (rc *RunContext) Variable(name string) (any, bool) {
	v, ok := rc.variables[name]
	return v, ok
}

// SetVariable records an exported variable, overwriting any prior
// value of the same name. Later exports shadow earlier ones.
func (rc *RunContext) SetVariable(name string, value any) {
	rc.variables[name] = value
}

// Variables returns a snapshot copy of the variable table, safe for a
// caller to range over without racing further SetVariable calls.
func (rc *RunContext) Variables() map[string]any {
	out := make(map[string]any, len(rc.variables))
	for k, v := range rc.variables {
		out[k] = v
	}
	return out
}
