package ferresdbtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockServer is an in-memory implementation of a FerresDB server.
// It's useful for testing client code without network dependencies.
type MockServer struct {
	server *httptest.Server

	mu          sync.Mutex
	apiKey      string
	collections map[string]*mockCollection
	keys        []*mockKey
	jobs        []*mockJob
	failures    []Failure
	requests    []RecordedRequest

	legacyListing     bool
	estimatedMs       float64
	historicalLatency *HistoricalLatency

	stream streamState
}

type mockCollection struct {
	Name          string          `json:"name"`
	Dimension     int             `json:"dimension"`
	Distance      string          `json:"distance"`
	EnableBM25    bool            `json:"enable_bm25"`
	BM25TextField string          `json:"bm25_text_field,omitempty"`
	Quantization  json.RawMessage `json:"quantization,omitempty"`
	TieredStorage json.RawMessage `json:"tiered_storage,omitempty"`
	PointCount    int             `json:"point_count"`
	CreatedAt     int64           `json:"created_at"`

	points map[string]mockPoint
	order  []string
}

type mockPoint struct {
	ID       string         `json:"id"`
	Vector   []float64      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type mockKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Prefix    string `json:"prefix"`
	CreatedAt int64  `json:"created_at"`
}

type mockJob struct {
	ID          string  `json:"job_id"`
	Collection  string  `json:"collection"`
	State       string  `json:"state"`
	Progress    float64 `json:"progress"`
	StartedAt   int64   `json:"started_at"`
	CompletedAt *int64  `json:"completed_at,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// HistoricalLatency is reported by the estimate endpoints when set with
// SetHistoricalLatency.
type HistoricalLatency struct {
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Failure is an injected error response.
type Failure struct {
	Status  int
	Code    string
	Message string
}

// RecordedRequest is a request received by the REST handlers.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// NewMockServer creates a new mock FerresDB server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		collections: make(map[string]*mockCollection),
		estimatedMs: 1,
	}
	ms.stream.init()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", ms.handleHealth)
	mux.HandleFunc("POST /collections", ms.handleCreateCollection)
	mux.HandleFunc("GET /collections", ms.handleListCollections)
	mux.HandleFunc("GET /collections/{name}", ms.handleGetCollection)
	mux.HandleFunc("DELETE /collections/{name}", ms.handleDeleteCollection)
	mux.HandleFunc("GET /collections/{name}/tiers", ms.handleTiers)
	mux.HandleFunc("POST /collections/{name}/points", ms.handleUpsert)
	mux.HandleFunc("GET /collections/{name}/points", ms.handleListPoints)
	mux.HandleFunc("GET /collections/{name}/points/{id}", ms.handleGetPoint)
	mux.HandleFunc("DELETE /collections/{name}/points", ms.handleDeletePoints)
	mux.HandleFunc("POST /collections/{name}/search", ms.handleSearch)
	mux.HandleFunc("POST /collections/{name}/search/estimate", ms.handleEstimate)
	mux.HandleFunc("POST /collections/{name}/search/explain", ms.handleExplain)
	mux.HandleFunc("POST /collections/{name}/search/hybrid", ms.handleHybrid)
	mux.HandleFunc("POST /collections/{name}/reindex", ms.handleStartReindex)
	mux.HandleFunc("GET /collections/{name}/reindex", ms.handleListJobs)
	mux.HandleFunc("GET /collections/{name}/reindex/{id}", ms.handleGetJob)
	mux.HandleFunc("POST /keys", ms.handleCreateKey)
	mux.HandleFunc("GET /keys", ms.handleListKeys)
	mux.HandleFunc("DELETE /keys/{id}", ms.handleDeleteKey)
	mux.HandleFunc("GET /ws", ms.handleStream)

	ms.server = httptest.NewServer(ms.middleware(mux))
	return ms
}

// URL returns the base URL of the mock server.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// HTTPClient returns an HTTP client configured to use the mock server.
func (ms *MockServer) HTTPClient() *http.Client {
	return ms.server.Client()
}

// Close shuts down the mock server and any streaming connections.
func (ms *MockServer) Close() {
	ms.DropStreams()
	ms.server.Close()
}

// Reset clears all state, injected failures and recorded requests.
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.collections = make(map[string]*mockCollection)
	ms.keys = nil
	ms.jobs = nil
	ms.failures = nil
	ms.requests = nil
}

// RequireAPIKey makes every request (and the streaming handshake) require key.
func (ms *MockServer) RequireAPIKey(key string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.apiKey = key
}

// FailNext makes the next len(failures) REST requests return the given errors,
// in order, before any handler runs.
func (ms *MockServer) FailNext(failures ...Failure) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.failures = append(ms.failures, failures...)
}

// SetLegacyListing omits the distance field from collection listings, as older
// servers do.
func (ms *MockServer) SetLegacyListing(legacy bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.legacyListing = legacy
}

// SetEstimatedMs sets the latency predicted for every search.
func (ms *MockServer) SetEstimatedMs(estimate float64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.estimatedMs = estimate
}

// SetHistoricalLatency sets the latency history reported in estimates.
// Nil omits the field.
func (ms *MockServer) SetHistoricalLatency(h *HistoricalLatency) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.historicalLatency = h
}

// Requests returns the recorded REST requests.
func (ms *MockServer) Requests() []RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.requests)
}

// RequestCount returns how many REST requests matched method and path.
func (ms *MockServer) RequestCount(method, path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for _, r := range ms.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// PointCount returns the number of points stored in a collection.
func (ms *MockServer) PointCount(collection string) (int, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collections[collection]
	if !ok {
		return 0, false
	}
	return len(c.points), true
}

// middleware records requests, checks credentials and applies injected failures.
func (ms *MockServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		ms.mu.Lock()
		ms.requests = append(ms.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		apiKey := ms.apiKey
		var failure *Failure
		if len(ms.failures) > 0 {
			f := ms.failures[0]
			ms.failures = ms.failures[1:]
			failure = &f
		}
		ms.mu.Unlock()

		if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing api key", nil)
			return
		}
		if failure != nil {
			writeError(w, failure.Status, failure.Code, failure.Message, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Collections
// =============================================================================

func (ms *MockServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": "mock"})
}

func (ms *MockServer) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req mockCollection
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed body: "+err.Error(), nil)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_payload", "name is required", nil)
		return
	}
	if req.Dimension <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_dimension", "dimension must be positive", nil)
		return
	}
	switch req.Distance {
	case "Cosine", "Euclidean", "DotProduct":
	default:
		writeError(w, http.StatusBadRequest, "invalid_payload", fmt.Sprintf("unknown distance '%s'", req.Distance), nil)
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.collections[req.Name]; ok {
		writeError(w, http.StatusConflict, "collection_already_exists", fmt.Sprintf("collection '%s' already exists", req.Name), nil)
		return
	}
	req.CreatedAt = time.Now().Unix()
	req.points = make(map[string]mockPoint)
	ms.collections[req.Name] = &req
	writeJSON(w, http.StatusCreated, &req)
}

func (ms *MockServer) handleListCollections(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	names := make([]string, 0, len(ms.collections))
	for name := range ms.collections {
		names = append(names, name)
	}
	slices.Sort(names)

	items := make([]map[string]any, 0, len(names))
	for _, name := range names {
		c := ms.collections[name]
		item := map[string]any{
			"name":        c.Name,
			"dimension":   c.Dimension,
			"point_count": len(c.points),
			"created_at":  c.CreatedAt,
		}
		if !ms.legacyListing {
			item["distance"] = c.Distance
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": items})
}

func (ms *MockServer) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	c.PointCount = len(c.points)
	writeJSON(w, http.StatusOK, c)
}

func (ms *MockServer) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	delete(ms.collections, c.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (ms *MockServer) handleTiers(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	n := len(c.points)
	writeJSON(w, http.StatusOK, map[string]any{
		"collection": c.Name,
		"tiers": []map[string]any{
			{"tier": "hot", "point_count": n, "size_bytes": n * c.Dimension * 4},
			{"tier": "warm", "point_count": 0, "size_bytes": 0},
			{"tier": "cold", "point_count": 0, "size_bytes": 0},
		},
	})
}

// collection resolves the {name} path value. The caller must hold ms.mu.
func (ms *MockServer) collection(w http.ResponseWriter, r *http.Request) (*mockCollection, bool) {
	name := r.PathValue("name")
	c, ok := ms.collections[name]
	if !ok {
		writeError(w, http.StatusNotFound, "collection_not_found", fmt.Sprintf("collection '%s' not found", name), nil)
		return nil, false
	}
	return c, true
}

// =============================================================================
// Points
// =============================================================================

type failedPoint struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// upsertLocked stores points, rejecting those with a missing id or wrong dimension.
func (c *mockCollection) upsertLocked(points []mockPoint) (int, []failedPoint) {
	upserted := 0
	failed := []failedPoint{}
	for _, p := range points {
		switch {
		case p.ID == "":
			failed = append(failed, failedPoint{ID: p.ID, Error: "id is required"})
			continue
		case len(p.Vector) != c.Dimension:
			failed = append(failed, failedPoint{
				ID:    p.ID,
				Error: fmt.Sprintf("expected dimension %d, got %d", c.Dimension, len(p.Vector)),
			})
			continue
		}
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = p
		upserted++
	}
	return upserted, failed
}

func (c *mockCollection) deleteLocked(ids []string) (int, []string) {
	var deleted []string
	for _, id := range ids {
		if _, ok := c.points[id]; ok {
			delete(c.points, id)
			deleted = append(deleted, id)
		}
	}
	if len(deleted) > 0 {
		c.order = slices.DeleteFunc(c.order, func(id string) bool {
			_, ok := c.points[id]
			return !ok
		})
	}
	return len(deleted), deleted
}

func (ms *MockServer) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []mockPoint `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed body: "+err.Error(), nil)
		return
	}

	ms.mu.Lock()
	c, ok := ms.collection(w, r)
	if !ok {
		ms.mu.Unlock()
		return
	}
	upserted, failed := c.upsertLocked(req.Points)
	ms.mu.Unlock()

	ms.stream.publish(c.Name, "upsert", pointIDs(req.Points, failed))
	writeJSON(w, http.StatusOK, map[string]any{"upserted": upserted, "failed": failed})
}

func (ms *MockServer) handleGetPoint(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	p, ok := c.points[id]
	if !ok {
		writeError(w, http.StatusNotFound, "point_not_found", fmt.Sprintf("point '%s' not found", id), nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (ms *MockServer) handleListPoints(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer", nil)
		return
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	page := []mockPoint{}
	for i := offset; i < len(c.order) && len(page) < limit; i++ {
		page = append(page, c.points[c.order[i]])
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": page, "total": len(c.order)})
}

func (ms *MockServer) handleDeletePoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed body: "+err.Error(), nil)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_payload", "ids must not be empty", nil)
		return
	}

	ms.mu.Lock()
	c, ok := ms.collection(w, r)
	if !ok {
		ms.mu.Unlock()
		return
	}
	n, deleted := c.deleteLocked(req.IDs)
	ms.mu.Unlock()

	if n > 0 {
		ms.stream.publish(c.Name, "delete", deleted)
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// pointIDs returns the ids of points that were not rejected.
func pointIDs(points []mockPoint, failed []failedPoint) []string {
	rejected := make(map[string]bool, len(failed))
	for _, f := range failed {
		rejected[f.ID] = true
	}
	ids := make([]string, 0, len(points))
	for _, p := range points {
		if p.ID != "" && !rejected[p.ID] {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// =============================================================================
// Keys
// =============================================================================

func (ms *MockServer) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_payload", "name is required", nil)
		return
	}

	secret := "fdb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := &mockKey{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Prefix:    secret[:8],
		CreatedAt: time.Now().Unix(),
	}

	ms.mu.Lock()
	ms.keys = append(ms.keys, key)
	ms.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"prefix":     key.Prefix,
		"created_at": key.CreatedAt,
		"key":        secret,
	})
}

func (ms *MockServer) handleListKeys(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	keys := make([]mockKey, 0, len(ms.keys))
	for _, k := range ms.keys {
		keys = append(keys, *k)
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (ms *MockServer) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ms.mu.Lock()
	defer ms.mu.Unlock()
	i := slices.IndexFunc(ms.keys, func(k *mockKey) bool { return k.ID == id })
	if i < 0 {
		writeError(w, http.StatusNotFound, "key_not_found", fmt.Sprintf("key '%s' not found", id), nil)
		return
	}
	ms.keys = slices.Delete(ms.keys, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Reindex
// =============================================================================

var jobProgression = map[string]string{
	"queued":   "building",
	"building": "swapping",
	"swapping": "completed",
}

func (ms *MockServer) handleStartReindex(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	for _, j := range ms.jobs {
		if j.Collection == c.Name && j.State != "completed" && j.State != "failed" {
			writeError(w, http.StatusConflict, "reindex_in_progress",
				fmt.Sprintf("reindex already running for collection '%s'", c.Name), nil)
			return
		}
	}
	job := &mockJob{
		ID:         uuid.NewString(),
		Collection: c.Name,
		State:      "queued",
		StartedAt:  time.Now().Unix(),
	}
	ms.jobs = append(ms.jobs, job)
	writeJSON(w, http.StatusAccepted, job)
}

func (ms *MockServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	for _, j := range ms.jobs {
		if j.ID == id && j.Collection == c.Name {
			writeJSON(w, http.StatusOK, j)
			return
		}
	}
	writeError(w, http.StatusNotFound, "job_not_found", fmt.Sprintf("job '%s' not found", id), nil)
}

func (ms *MockServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	jobs := []mockJob{}
	for _, j := range ms.jobs {
		if j.Collection == c.Name {
			jobs = append(jobs, *j)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// AdvanceJob moves a job one step along queued → building → swapping → completed.
// It returns the new state, or false if the job is unknown or already terminal.
func (ms *MockServer) AdvanceJob(id string) (string, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, j := range ms.jobs {
		if j.ID != id {
			continue
		}
		next, ok := jobProgression[j.State]
		if !ok {
			return j.State, false
		}
		j.State = next
		switch next {
		case "building":
			j.Progress = 0.5
		case "swapping":
			j.Progress = 0.9
		case "completed":
			j.Progress = 1
			now := time.Now().Unix()
			j.CompletedAt = &now
		}
		return next, true
	}
	return "", false
}

// FailJob moves a non-terminal job to failed with message.
func (ms *MockServer) FailJob(id, message string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, j := range ms.jobs {
		if j.ID == id && j.State != "completed" && j.State != "failed" {
			j.State = "failed"
			j.Error = message
			return true
		}
	}
	return false
}

// =============================================================================
// Helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the documented error body, merging extra fields into it.
func writeError(w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	body := map[string]any{
		"error":   code,
		"message": message,
		"code":    status,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}
