// Package dispatch builds and sends the single HTTP request a Step
// resolves to, and assembles the completed RequestAndResponse.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apitoolkit/testkit/pkg/plan"
)

// DefaultTimeout is the transport-level timeout of the *http.Client that
// New creates, and of the one Do falls back to when HTTPClient is nil.
const DefaultTimeout = 30 * time.Second

// Dispatcher sends one HTTP request per step and reports the outcome
// as a RequestAndResponse, never constructing a StepResult itself —
// that remains the orchestrator's job.
type Dispatcher struct {
	HTTPClient   *http.Client
	CollectionID string // empty means no X-Testkit-Collection-ID header
}

// New creates a Dispatcher with a default-timeout *http.Client.
func New(collectionID string) *Dispatcher {
	return &Dispatcher{
		HTTPClient:   &http.Client{Timeout: DefaultTimeout},
		CollectionID: collectionID,
	}
}

// Do builds and sends req (already fully interpolated) and returns the
// completed RequestAndResponse. On any transport-level failure (DNS,
// connect, TLS, non-response IO) it returns a *plan.TransportError and
// a nil RequestAndResponse — the caller records that on the
// StepResult and skips assertions/exports for the step.
func (d *Dispatcher) Do(ctx context.Context, req plan.Request) (*plan.RequestAndResponse, *plan.TransportError) {
	var bodyReader io.Reader
	if req.JSON != nil {
		body, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, &plan.TransportError{Err: fmt.Errorf("marshal request body: %w", err)}
		}
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, bodyReader)
	if err != nil {
		return nil, &plan.TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if req.JSON != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Testkit-Run", "true")
	if d.CollectionID != "" {
		httpReq.Header.Set("X-Testkit-Collection-ID", d.CollectionID)
	}

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &plan.TransportError{Err: fmt.Errorf("request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &plan.TransportError{Err: fmt.Errorf("read response body: %w", err)}
	}

	// A non-JSON (or empty) body produces an empty-object JSON view; the
	// literal bytes survive on Raw so $.resp.raw assertions still work.
	var parsed any = map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			parsed = v
		}
	}

	return &plan.RequestAndResponse{
		Request: req,
		Response: plan.Response{
			StatusCode: resp.StatusCode,
			Headers:    map[string][]string(resp.Header),
			JSON:       parsed,
			Raw:        string(raw),
		},
	}, nil
}
