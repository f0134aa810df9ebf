package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferres-db/ferresdb-go/ferresdbtest"
)

// runScript feeds lines to a fresh adapter and decodes one result per line.
func runScript(t *testing.T, lines ...string) []map[string]any {
	t.Helper()
	a := newAdapter()
	t.Cleanup(a.close)

	var out bytes.Buffer
	require.NoError(t, a.run(strings.NewReader(strings.Join(lines, "\n")), &out))

	var results []map[string]any
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r map[string]any
		require.NoError(t, dec.Decode(&r))
		results = append(results, r)
	}
	return results
}

func initLine(t *testing.T, url string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"type": "init", "serverUrl": url, "maxRetries": 0})
	require.NoError(t, err)
	return string(b)
}

func TestAdapter_Workflow(t *testing.T) {
	server := ferresdbtest.NewMockServer()
	defer server.Close()

	results := runScript(t,
		initLine(t, server.URL()),
		`{"type":"health"}`,
		`{"type":"create-collection","collection":"docs","dimension":2,"distance":"Cosine"}`,
		`{"type":"upsert","collection":"docs","points":[{"id":"a","vector":[1,0]},{"id":"b","vector":[0,1]}]}`,
		`{"type":"search","collection":"docs","vector":[1,0],"limit":1}`,
		`{"type":"get-point","collection":"docs","id":"b"}`,
		`{"type":"delete-points","collection":"docs","ids":["a"]}`,
		`{"type":"stream-upsert","collection":"docs","points":[{"id":"c","vector":[1,1]}]}`,
		`{"type":"ping"}`,
		`{"type":"shutdown"}`,
		`{"type":"health"}`,
	)

	require.Len(t, results, 10, "nothing is processed after shutdown")
	for _, r := range results {
		assert.Equal(t, true, r["success"], "%v", r)
	}

	assert.Equal(t, "ferresdb-go", results[0]["clientName"])
	assert.Equal(t, "ok", results[1]["message"])
	assert.Equal(t, float64(2), results[3]["upserted"])
	assert.Equal(t, []any{map[string]any{"id": "a", "score": float64(1)}}, results[4]["results"])
	assert.Equal(t, "b", results[5]["point"].(map[string]any)["id"])
	assert.Equal(t, float64(1), results[6]["deleted"])
	assert.Equal(t, float64(1), results[7]["upserted"])
	assert.Equal(t, "shutdown", results[9]["type"])

	n, _ := server.PointCount("docs")
	assert.Equal(t, 2, n)
}

func TestAdapter_ErrorCodes(t *testing.T) {
	server := ferresdbtest.NewMockServer()
	defer server.Close()

	results := runScript(t,
		`{"type":"health"}`,
		initLine(t, server.URL()),
		`{"type":"create-collection","collection":"docs","dimension":2}`,
		`{"type":"create-collection","collection":"docs","dimension":2}`,
		`{"type":"get-point","collection":"docs","id":"missing"}`,
		`{"type":"search","collection":"docs","vector":[1,0,0],"limit":1}`,
		`{"type":"delete-points","collection":"docs","ids":[]}`,
		`{"type":"search","collection":"docs","vector":[1,0],"limit":1,"budgetMs":1}`,
		`not json`,
		`{"type":"compact"}`,
	)

	codes := make([]any, len(results))
	for i, r := range results {
		codes[i] = r["errorCode"]
	}
	assert.Equal(t, []any{
		"NOT_INITIALIZED",
		nil,
		nil,
		"CONFLICT",
		"NOT_FOUND",
		"INVALID_DIMENSION",
		"INVALID_PAYLOAD",
		nil,
		"PARSE_ERROR",
		"NOT_SUPPORTED",
	}, codes)

	assert.Equal(t, float64(409), results[3]["status"])
	assert.Equal(t, "create-collection", results[3]["commandType"])
	assert.Equal(t, true, results[7]["success"], "estimate within budget")
}

func TestAdapter_BudgetExceededCarriesEstimate(t *testing.T) {
	server := ferresdbtest.NewMockServer()
	defer server.Close()
	server.SetEstimatedMs(50)

	results := runScript(t,
		initLine(t, server.URL()),
		`{"type":"create-collection","collection":"docs","dimension":2}`,
		`{"type":"search","collection":"docs","vector":[1,0],"limit":1,"budgetMs":10}`,
	)

	require.Len(t, results, 3)
	assert.Equal(t, "BUDGET_EXCEEDED", results[2]["errorCode"])
	estimate, ok := results[2]["estimate"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(50), estimate["estimated_ms"])
}

func TestAdapter_ConnectionError(t *testing.T) {
	server := ferresdbtest.NewMockServer()
	url := server.URL()
	server.Close()

	results := runScript(t, initLine(t, url), `{"type":"health"}`, `{"type":"ping"}`)

	require.Len(t, results, 3)
	assert.Equal(t, "CONNECTION_ERROR", results[1]["errorCode"])
	assert.Equal(t, "CONNECTION_ERROR", results[2]["errorCode"])
}

func TestAdapter_InvalidConfig(t *testing.T) {
	results := runScript(t, `{"type":"init","serverUrl":"not a url"}`)

	require.Len(t, results, 1)
	assert.Equal(t, "INVALID_CONFIG", results[0]["errorCode"])
}

func TestResult_ResultsArray(t *testing.T) {
	for _, typ := range []string{"search", "hybrid-search"} {
		b, err := json.Marshal(Result{Type: typ, Success: true})
		require.NoError(t, err)
		assert.Contains(t, string(b), `"results":[]`, typ)
	}

	b, err := json.Marshal(Result{Type: "search", Results: []Hit{{ID: "a", Score: 0.5}}})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"results":[{"id":"a","score":0.5}]`)

	for _, r := range []Result{
		{Type: "upsert", Success: true, Upserted: 1},
		sendError("search", "NOT_FOUND", "missing"),
	} {
		b, err := json.Marshal(r)
		require.NoError(t, err)
		assert.NotContains(t, string(b), `"results"`, r.Type)
	}
}

func TestAdapter_ValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"1.0"}`))
	}))
	defer server.Close()

	results := runScript(t, initLine(t, server.URL), `{"type":"health"}`)

	require.Len(t, results, 2)
	assert.Equal(t, "VALIDATION_ERROR", results[1]["errorCode"])
	assert.Equal(t, "health", results[1]["commandType"])
}
