package orchestrator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apitoolkit/testkit/pkg/plan"
)

// TraceEvent is one JSONL record in a run trace. It is an optional,
// supplementary run record — nothing in the core execution path
// depends on it existing.
type TraceEvent struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	FileLabel string           `json:"fileLabel"`
	StepIndex *int             `json:"stepIndex,omitempty"`
	Title     string           `json:"title,omitempty"`
	StepCount int              `json:"stepCount,omitempty"`
	Result    *plan.StepResult `json:"result,omitempty"`
}

// TraceWriter appends TraceEvents to a JSONL stream, flushing after
// every write so a killed process loses at most the in-flight event.
type TraceWriter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

// NewTraceWriter wraps w (typically an *os.File opened for append) in
// a buffered JSONL writer.
func NewTraceWriter(w io.Writer) *TraceWriter {
	bw := bufio.NewWriter(w)
	return &TraceWriter{w: bw, enc: json.NewEncoder(bw)}
}

// RunStart records the beginning of a plan run and the number of steps
// it will execute.
func (tw *TraceWriter) RunStart(fileLabel string, stepCount int) error {
	return tw.write(TraceEvent{Type: "run_start", FileLabel: fileLabel, StepCount: stepCount})
}

// StepStart records that step index is about to dispatch.
func (tw *TraceWriter) StepStart(fileLabel string, index int, title string) error {
	return tw.write(TraceEvent{Type: "step_start", FileLabel: fileLabel, StepIndex: &index, Title: title})
}

// StepComplete records a step's full StepResult.
func (tw *TraceWriter) StepComplete(fileLabel string, result *plan.StepResult) error {
	idx := result.Index
	return tw.write(TraceEvent{Type: "step_complete", FileLabel: fileLabel, StepIndex: &idx, Title: result.Title, Result: result})
}

// RunComplete records the end of a run and how many StepResults it
// produced.
func (tw *TraceWriter) RunComplete(fileLabel string, resultCount int) error {
	return tw.write(TraceEvent{Type: "run_complete", FileLabel: fileLabel, StepCount: resultCount})
}

func (tw *TraceWriter) write(event TraceEvent) error {
	event.Timestamp = time.Now().UTC()
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if err := tw.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	return tw.w.Flush()
}
