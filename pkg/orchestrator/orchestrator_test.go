package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apitoolkit/testkit/pkg/plan"
	"github.com/apitoolkit/testkit/pkg/testlog"
)

// recordingLogger captures log messages so tests can assert on the
// soft-failure paths that log instead of aborting.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) With(_ ...any) testlog.Logger {
	return l
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// newTodoServer is the mock backing the create/read/update/delete
// scenario: POST creates, GET lists, PUT echoes the id, DELETE marks
// completed.
func newTodoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost:
			w.Header().Set("Location", "/todos/1")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id": 1}`)
		case r.Method == http.MethodGet:
			fmt.Fprint(w, `{"tasks": [{"id": 1, "task": "hit the gym"}]}`)
		case r.Method == http.MethodPut:
			fmt.Fprint(w, `{"id": 1}`)
		case r.Method == http.MethodDelete:
			fmt.Fprint(w, `{"completed": true}`)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func TestRun_CreateReadUpdateDeleteFlow(t *testing.T) {
	srv := newTodoServer(t)
	defer srv.Close()

	doc := fmt.Sprintf(`
- title: create
  POST: %[1]s/todos
  headers:
    Content-Type: application/json
  json: { task: "hit the gym" }
  asserts:
    - ok: $.resp.status == 201
    - number: $.resp.json.id
  exports:
    todoId: $.resp.json.id
- title: list
  GET: %[1]s/todos
  asserts:
    - array: $.resp.json.tasks
    - notEmpty: $.resp.json.tasks
- title: update
  PUT: %[1]s/todos/{{todoId}}
  asserts:
    - ok: $.resp.json.id == {{todoId}}
- title: delete
  DELETE: %[1]s/todos/{{todoId}}
  asserts:
    - boolean: $.resp.json.completed
`, srv.URL)

	results, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{FileLabel: "crud.yaml"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for _, r := range results {
		assert.Empty(t, r.StepError, "step %d", r.Index)
		for _, o := range r.AssertOutcomes {
			require.Nil(t, o.Err, "step %d assert %s %s", r.Index, o.Kind, o.Expr)
			assert.True(t, o.Passed, "step %d assert %s %s", r.Index, o.Kind, o.Expr)
		}
	}

	// The exported todoId must have reached the update step's URL.
	assert.Equal(t, srv.URL+"/todos/1", results[2].RequestAndResp.Request.URL)
}

func TestRun_DateAssertion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"when": "2024-01-05"}`)
	}))
	defer srv.Close()

	doc := fmt.Sprintf(`
- GET: %s/when
  asserts:
    - date: $.resp.json.when %%Y-%%m-%%d
    - date: $.resp.json.when %%Y/%%m/%%d
`, srv.URL)

	results, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].AssertOutcomes, 2)

	good := results[0].AssertOutcomes[0]
	require.Nil(t, good.Err)
	assert.True(t, good.Passed)

	bad := results[0].AssertOutcomes[1]
	require.NotNil(t, bad.Err)
	assert.Contains(t, bad.Err.Advice, "date parse")
}

func TestRun_MissingPathUnderlinesFragment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 7}`)
	}))
	defer srv.Close()

	doc := fmt.Sprintf(`
- GET: %s/thing
  asserts:
    - ok: $.resp.json.nonexistent == 5
    - number: $.resp.json.nonexistent
`, srv.URL)

	results, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{FileLabel: "missing.yaml"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].AssertOutcomes, 2)

	for _, outcome := range results[0].AssertOutcomes {
		require.NotNil(t, outcome.Err, "kind=%s", outcome.Kind)
		span := outcome.Err.Span
		assert.Equal(t, "$.resp.json.nonexistent", outcome.Err.Expr[span[0]:span[1]], "kind=%s", outcome.Kind)
		assert.Equal(t, "missing.yaml", outcome.Err.SourceLabel)
	}

	// The boxed diagnostic lands in the step log alongside the ❌ line.
	require.NotEmpty(t, results[0].StepLog)
	assert.Contains(t, results[0].StepLog[0], "❌ ok ⮕")
}

func TestRun_HeaderExportFlowsIntoNextURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Location", "/todos/42")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{}`)
			return
		}
		gotPath = r.URL.Path
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	doc := fmt.Sprintf(`
- POST: %[1]s/todos
  exports:
    loc: $.res.header.Location
- GET: %[1]s{{loc}}
`, srv.URL)

	results, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Empty(t, results[1].StepError)
	assert.Equal(t, "/todos/42", gotPath)
}

func TestRun_TransportFailureIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"up": true}`)
	}))
	defer srv.Close()

	doc := fmt.Sprintf(`
- title: unreachable
  GET: http://127.0.0.1:1/nope
  asserts:
    - ok: $.resp.status == 200
- title: reachable
  GET: %s/health
  asserts:
    - boolean: $.resp.json.up
`, srv.URL)

	results, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NotEmpty(t, results[0].StepError)
	assert.Empty(t, results[0].AssertOutcomes)

	assert.Empty(t, results[1].StepError)
	require.Len(t, results[1].AssertOutcomes, 1)
	assert.True(t, results[1].AssertOutcomes[0].Passed)
}

func TestRun_YAMLJSONParity(t *testing.T) {
	srv := newTodoServer(t)
	defer srv.Close()

	yamlDoc := fmt.Sprintf(`
- title: create
  POST: %[1]s/todos
  json: { task: "hit the gym" }
  asserts:
    - ok: $.resp.status == 201
    - number: $.resp.json.id
  exports:
    todoId: $.resp.json.id
- title: update
  PUT: %[1]s/todos/{{todoId}}
  asserts:
    - ok: $.resp.json.id == {{todoId}}
`, srv.URL)

	jsonDoc := fmt.Sprintf(`[
  {"title": "create", "POST": "%[1]s/todos",
   "json": {"task": "hit the gym"},
   "asserts": [{"ok": "$.resp.status == 201"}, {"number": "$.resp.json.id"}],
   "exports": {"todoId": "$.resp.json.id"}},
  {"title": "update", "PUT": "%[1]s/todos/{{todoId}}",
   "asserts": [{"ok": "$.resp.json.id == {{todoId}}"}]}
]`, srv.URL)

	fromYAML, err := RunPlan(context.Background(), []byte(yamlDoc), plan.FormatYAML, RunConfig{FileLabel: "plan"})
	require.NoError(t, err)
	fromJSON, err := RunPlan(context.Background(), []byte(jsonDoc), plan.FormatJSON, RunConfig{FileLabel: "plan"})
	require.NoError(t, err)

	// SourceText differs between the two runs by construction, but the
	// result sequences must be identical.
	assert.Equal(t, fromYAML, fromJSON)
}

func TestRunPlan_ParseErrorProducesNoResults(t *testing.T) {
	results, err := RunPlan(context.Background(), []byte(`- GET: [not, a, url`), plan.FormatYAML, RunConfig{FileLabel: "bad.yaml"})
	require.Error(t, err)
	var perr *plan.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Nil(t, results)
}

func TestRun_EmptyPlanMakesNoNetworkCalls(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	results, err := RunPlan(context.Background(), []byte(""), plan.FormatYAML, RunConfig{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, calls)
}

func TestRun_NoAssertsStillExports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token": "abc"}`)
	}))
	defer srv.Close()

	var gotAuth string
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{}`)
	}))
	defer srv2.Close()

	doc := fmt.Sprintf(`
- GET: %s/login
  exports:
    token: $.resp.json.token
- GET: %s/private
  headers:
    Authorization: Bearer {{token}}
`, srv.URL, srv2.URL)

	results, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].AssertOutcomes)
	assert.Equal(t, "Bearer abc", gotAuth)
}

func TestRun_UnsetEnvLeavesPlaceholderAndLogs(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	doc := fmt.Sprintf(`
- GET: %s/
  headers:
    X-Api-Key: $.env.TESTKIT_NO_SUCH_KEY
`, srv.URL)

	logger := &recordingLogger{}
	results, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{
		Logger:    logger,
		EnvLookup: func(string) (string, bool) { return "", false },
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].StepError)
	assert.Equal(t, "$.env.TESTKIT_NO_SUCH_KEY", gotHeader)
	assert.True(t, logger.contains("unresolved environment placeholder"))
}

func TestRun_StrictEnvFailsStepBeforeDispatch(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	doc := fmt.Sprintf(`
- GET: %s/
  headers:
    X-Api-Key: $.env.TESTKIT_NO_SUCH_KEY
`, srv.URL)

	results, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{
		StrictEnv: true,
		EnvLookup: func(string) (string, bool) { return "", false },
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].StepError, "TESTKIT_NO_SUCH_KEY")
	assert.Zero(t, calls)
}

func TestRun_JSONBodyInterpolation(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	doc := fmt.Sprintf(`
- POST: %s/todos
  json: { task: "{{taskName}}" }
`, srv.URL)

	_, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{
		InitialVars: map[string]any{"taskName": "hit the gym"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"task": "hit the gym"}`, string(gotBody))
}

func TestRun_InitialVarsSeedFirstStep(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	doc := fmt.Sprintf(`
- GET: %s/users/{{userId}}
`, srv.URL)

	_, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{
		InitialVars: map[string]any{"userId": float64(9)},
	})
	require.NoError(t, err)
	assert.Equal(t, "/users/9", gotPath)
}

func TestRun_CancelledContextStopsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := fmt.Sprintf("- GET: %s/\n", srv.URL)
	results, err := RunPlan(ctx, []byte(doc), plan.FormatYAML, RunConfig{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRun_TraceEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer srv.Close()

	var buf strings.Builder
	tw := NewTraceWriter(&buf)

	doc := fmt.Sprintf(`
- title: ping
  GET: %s/ping
  asserts:
    - boolean: $.resp.json.ok
`, srv.URL)

	_, err := RunPlan(context.Background(), []byte(doc), plan.FormatYAML, RunConfig{FileLabel: "ping.yaml", Trace: tw})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var types []string
	for _, line := range lines {
		var event TraceEvent
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		assert.Equal(t, "ping.yaml", event.FileLabel)
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{"run_start", "step_start", "step_complete", "run_complete"}, types)
}

func TestStepResult_StableJSONFieldNames(t *testing.T) {
	r := plan.StepResult{Title: "create", Index: 0}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "stepName")
	assert.Contains(t, m, "stepIndex")
	assert.Contains(t, m, "assertResults")
}
