package ferresdbtest

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"sort"
	"strings"
)

type searchRequest struct {
	Vector   []float64      `json:"vector"`
	Limit    int            `json:"limit"`
	Filter   map[string]any `json:"filter,omitempty"`
	BudgetMs int            `json:"budget_ms,omitempty"`
}

type hybridRequest struct {
	Text   string         `json:"text"`
	Vector []float64      `json:"vector"`
	Limit  int            `json:"limit"`
	Filter map[string]any `json:"filter,omitempty"`
	Fusion *struct {
		Strategy string   `json:"strategy"`
		Alpha    *float64 `json:"alpha,omitempty"`
		K        *int     `json:"k,omitempty"`
	} `json:"fusion,omitempty"`
}

type scored struct {
	point mockPoint
	score float64
}

// estimateLocked builds the cost estimate for a query. The caller must hold ms.mu.
func (ms *MockServer) estimateLocked(c *mockCollection) map[string]any {
	est := map[string]any{
		"estimated_ms":            ms.estimatedMs,
		"estimated_nodes_visited": len(c.points),
		"estimated_memory_bytes":  len(c.points) * c.Dimension * 4,
		"is_expensive":            ms.estimatedMs > 100,
	}
	if ms.historicalLatency != nil {
		est["historical_latency"] = ms.historicalLatency
	}
	return est
}

// decodeQuery parses a search body and checks it against the collection.
// The caller must hold ms.mu.
func (ms *MockServer) decodeQuery(w http.ResponseWriter, r *http.Request) (*mockCollection, searchRequest, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed body: "+err.Error(), nil)
		return nil, req, false
	}
	c, ok := ms.collection(w, r)
	if !ok {
		return nil, req, false
	}
	if len(req.Vector) != c.Dimension {
		writeError(w, http.StatusBadRequest, "invalid_dimension",
			fmt.Sprintf("expected dimension %d, got %d", c.Dimension, len(req.Vector)), nil)
		return nil, req, false
	}
	return c, req, true
}

func (ms *MockServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, req, ok := ms.decodeQuery(w, r)
	if !ok {
		return
	}

	if req.BudgetMs > 0 && ms.estimatedMs > float64(req.BudgetMs) {
		writeError(w, http.StatusUnprocessableEntity, "budget_exceeded",
			fmt.Sprintf("estimated %.1fms exceeds budget of %dms", ms.estimatedMs, req.BudgetMs),
			map[string]any{"estimate": ms.estimateLocked(c)})
		return
	}

	ranked := rankByVector(c, req.Vector, req.Filter)
	results := make([]map[string]any, 0, req.Limit)
	for i := 0; i < len(ranked) && i < req.Limit; i++ {
		results = append(results, map[string]any{
			"id":       ranked[i].point.ID,
			"score":    ranked[i].score,
			"metadata": ranked[i].point.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "took_ms": 1})
}

func (ms *MockServer) handleEstimate(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, _, ok := ms.decodeQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ms.estimateLocked(c))
}

func (ms *MockServer) handleExplain(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, req, ok := ms.decodeQuery(w, r)
	if !ok {
		return
	}
	steps := []map[string]any{
		{"name": "hnsw_search", "detail": fmt.Sprintf("ef=%d", max(req.Limit*4, 64)), "estimated_ms": ms.estimatedMs},
	}
	if len(req.Filter) > 0 {
		steps = append(steps, map[string]any{"name": "metadata_filter", "detail": "equality", "estimated_ms": 0})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query_type": "vector",
		"index_type": "hnsw",
		"steps":      steps,
		"estimate":   ms.estimateLocked(c),
	})
}

func (ms *MockServer) handleHybrid(w http.ResponseWriter, r *http.Request) {
	var req hybridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed body: "+err.Error(), nil)
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.collection(w, r)
	if !ok {
		return
	}
	if !c.EnableBM25 {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("collection '%s' has no BM25 index", c.Name), nil)
		return
	}
	if len(req.Vector) != c.Dimension {
		writeError(w, http.StatusBadRequest, "invalid_dimension",
			fmt.Sprintf("expected dimension %d, got %d", c.Dimension, len(req.Vector)), nil)
		return
	}

	byVector := rankByVector(c, req.Vector, req.Filter)
	byText := rankByText(c, byVector, req.Text)

	vectorRank := make(map[string]int, len(byVector))
	vectorScore := make(map[string]float64, len(byVector))
	for i, s := range byVector {
		vectorRank[s.point.ID] = i + 1
		vectorScore[s.point.ID] = s.score
	}
	textRank := make(map[string]int, len(byText))
	textScore := make(map[string]float64, len(byText))
	for i, s := range byText {
		textRank[s.point.ID] = i + 1
		textScore[s.point.ID] = s.score
	}

	strategy, alpha, k := "linear", 0.5, 60
	if f := req.Fusion; f != nil {
		strategy = f.Strategy
		if f.Alpha != nil {
			alpha = *f.Alpha
		}
		if f.K != nil {
			k = *f.K
		}
	}

	fused := make([]scored, 0, len(byVector))
	for _, s := range byVector {
		id := s.point.ID
		var score float64
		if strategy == "rrf" {
			score = 1/float64(k+vectorRank[id]) + 1/float64(k+textRank[id])
		} else {
			score = alpha*vectorScore[id] + (1-alpha)*textScore[id]
		}
		fused = append(fused, scored{point: s.point, score: score})
	}
	sortScored(fused)

	results := make([]map[string]any, 0, req.Limit)
	for i := 0; i < len(fused) && i < req.Limit; i++ {
		id := fused[i].point.ID
		results = append(results, map[string]any{
			"id":           id,
			"score":        fused[i].score,
			"vector_score": vectorScore[id],
			"text_score":   textScore[id],
			"metadata":     fused[i].point.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "took_ms": 1})
}

// rankByVector scores matching points by the collection's distance, best first.
func rankByVector(c *mockCollection, query []float64, filter map[string]any) []scored {
	out := make([]scored, 0, len(c.points))
	for _, id := range c.order {
		p := c.points[id]
		if !matches(p.Metadata, filter) {
			continue
		}
		out = append(out, scored{point: p, score: similarity(c.Distance, query, p.Vector)})
	}
	sortScored(out)
	return out
}

// rankByText scores candidates by the fraction of query terms found in the
// collection's text field.
func rankByText(c *mockCollection, candidates []scored, text string) []scored {
	terms := strings.Fields(strings.ToLower(text))
	out := make([]scored, 0, len(candidates))
	for _, s := range candidates {
		body, _ := s.point.Metadata[c.BM25TextField].(string)
		body = strings.ToLower(body)
		hits := 0
		for _, t := range terms {
			if strings.Contains(body, t) {
				hits++
			}
		}
		score := 0.0
		if len(terms) > 0 {
			score = float64(hits) / float64(len(terms))
		}
		out = append(out, scored{point: s.point, score: score})
	}
	sortScored(out)
	return out
}

func sortScored(s []scored) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].score > s[j].score })
}

func matches(metadata, filter map[string]any) bool {
	for k, want := range filter {
		if got, ok := metadata[k]; !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// similarity returns a higher-is-better score.
func similarity(distance string, a, b []float64) float64 {
	var dot, na, nb, sq float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
		d := a[i] - b[i]
		sq += d * d
	}
	switch distance {
	case "Euclidean":
		return -math.Sqrt(sq)
	case "DotProduct":
		return dot
	default:
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}
