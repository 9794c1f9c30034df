package planschema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ProducesDraft202012ArraySchema(t *testing.T) {
	data, err := Generate()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "https://json-schema.org/draft/2020-12/schema", doc["$schema"])
	assert.Equal(t, "array", doc["type"])
	assert.Contains(t, doc, "items")
	assert.Contains(t, doc, "$defs")
}

func TestValidateDocument_AcceptsWellFormedPlan(t *testing.T) {
	doc := `[
	  {"title": "create", "POST": "https://api.example/todos",
	   "headers": {"Content-Type": "application/json"},
	   "json": {"task": "hit the gym"},
	   "asserts": [{"ok": "$.resp.status == 201"}],
	   "exports": {"todoId": "$.resp.json.id"}},
	  {"GET": "https://api.example/todos"}
	]`
	issues, err := ValidateDocument([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestValidateDocument_RejectsStepWithoutMethod(t *testing.T) {
	doc := `[{"title": "no method here"}]`
	issues, err := ValidateDocument([]byte(doc))
	require.NoError(t, err)
	assert.NotEmpty(t, issues)
}

func TestValidateDocument_RejectsUnknownStepField(t *testing.T) {
	doc := `[{"GET": "https://api.example/x", "bogusField": 1}]`
	issues, err := ValidateDocument([]byte(doc))
	require.NoError(t, err)
	assert.NotEmpty(t, issues)
}

func TestValidateDocument_StructuralFailureOnNonJSON(t *testing.T) {
	issues, err := ValidateDocument([]byte(`not json at all`))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "structural", issues[0].Phase)
}
