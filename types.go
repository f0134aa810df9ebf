package ferresdb

import "encoding/json"

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine     Distance = "Cosine"
	DistanceEuclidean  Distance = "Euclidean"
	DistanceDotProduct Distance = "DotProduct"
)

// Valid reports whether d is a known metric.
func (d Distance) Valid() bool {
	switch d {
	case DistanceCosine, DistanceEuclidean, DistanceDotProduct:
		return true
	}
	return false
}

// =============================================================================
// Collections
// =============================================================================

// QuantizationType tags a QuantizationConfig.
type QuantizationType string

const (
	QuantizationNone   QuantizationType = "none"
	QuantizationScalar QuantizationType = "scalar"
)

// QuantizationConfig is tagged by Type. Scalar fields are only sent for the scalar variant.
// Build one with NoQuantization or ScalarQuantization.
type QuantizationConfig struct {
	Type QuantizationType `json:"type" validate:"oneof=none scalar"`

	// Dtype is the quantized element type, e.g. "int8".
	Dtype string `json:"dtype,omitempty"`

	// Quantile is the calibration quantile in (0,1].
	Quantile *float64 `json:"quantile,omitempty" validate:"omitempty,gt=0,lte=1"`

	// AlwaysRAM keeps quantized vectors resident in memory.
	AlwaysRAM *bool `json:"always_ram,omitempty"`
}

// NoQuantization disables quantization.
func NoQuantization() *QuantizationConfig {
	return &QuantizationConfig{Type: QuantizationNone}
}

// ScalarQuantization enables scalar quantization with the given element type.
// Quantile and residency are left to the server unless set on the result.
func ScalarQuantization(dtype string) *QuantizationConfig {
	return &QuantizationConfig{Type: QuantizationScalar, Dtype: dtype}
}

// TieredStorageConfig configures hot/warm/cold tiering of points.
type TieredStorageConfig struct {
	Enabled          bool   `json:"enabled"`
	HotMaxPoints     *int64 `json:"hot_max_points,omitempty"`
	WarmAfterSeconds *int64 `json:"warm_after_secs,omitempty"`
	ColdAfterSeconds *int64 `json:"cold_after_secs,omitempty"`
}

// CreateCollectionRequest describes a new collection.
// Name, Dimension and Distance are required; zero-valued optional fields are not sent.
type CreateCollectionRequest struct {
	Name          string               `json:"name"`
	Dimension     int                  `json:"dimension"`
	Distance      Distance             `json:"distance"`
	EnableBM25    bool                 `json:"enable_bm25,omitempty"`
	BM25TextField string               `json:"bm25_text_field,omitempty"`
	Quantization  *QuantizationConfig  `json:"quantization,omitempty"`
	TieredStorage *TieredStorageConfig `json:"tiered_storage,omitempty"`
}

// Collection is the full description of a collection.
type Collection struct {
	Name          string               `json:"name" validate:"required"`
	Dimension     int                  `json:"dimension" validate:"gt=0"`
	Distance      Distance             `json:"distance" validate:"oneof=Cosine Euclidean DotProduct"`
	EnableBM25    bool                 `json:"enable_bm25"`
	BM25TextField string               `json:"bm25_text_field,omitempty"`
	Quantization  *QuantizationConfig  `json:"quantization,omitempty"`
	TieredStorage *TieredStorageConfig `json:"tiered_storage,omitempty"`
	PointCount    int64                `json:"point_count" validate:"gte=0"`
	CreatedAt     int64                `json:"created_at"`
}

// CollectionInfo is an entry of ListCollections.
// Distance is nil when the server does not report it.
type CollectionInfo struct {
	Name       string    `json:"name" validate:"required"`
	Dimension  int       `json:"dimension" validate:"gt=0"`
	Distance   *Distance `json:"distance,omitempty" validate:"omitempty,oneof=Cosine Euclidean DotProduct"`
	PointCount int64     `json:"point_count" validate:"gte=0"`
	CreatedAt  int64     `json:"created_at"`
}

type listCollectionsResponse struct {
	Collections []CollectionInfo `json:"collections" validate:"required,dive"`
}

// TierStats reports one storage tier of a collection.
type TierStats struct {
	Tier       string `json:"tier" validate:"oneof=hot warm cold"`
	PointCount int64  `json:"point_count" validate:"gte=0"`
	SizeBytes  int64  `json:"size_bytes" validate:"gte=0"`
}

// CollectionTiers is the response of CollectionTiers.
type CollectionTiers struct {
	Collection string      `json:"collection" validate:"required"`
	Tiers      []TierStats `json:"tiers" validate:"required,dive"`
}

// =============================================================================
// Points
// =============================================================================

// Point is an identified vector plus metadata.
type Point struct {
	ID       string         `json:"id" validate:"required"`
	Vector   []float32      `json:"vector" validate:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FailedPoint reports a point the server rejected during an upsert.
type FailedPoint struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// UpsertResult aggregates the outcome of an upsert.
type UpsertResult struct {
	Upserted int           `json:"upserted" validate:"gte=0"`
	Failed   []FailedPoint `json:"failed" validate:"dive"`
}

// DeleteResult is returned by DeletePoints.
type DeleteResult struct {
	Deleted int `json:"deleted" validate:"gte=0"`
}

// PointPage is one page of ListPoints.
type PointPage struct {
	Points []Point `json:"points" validate:"required,dive"`
	Total  int64   `json:"total" validate:"gte=0"`
}

// =============================================================================
// Search
// =============================================================================

// Filter is an equality-only metadata filter: every key must equal its value.
// Values must be strings, numbers or booleans.
type Filter map[string]any

// SearchRequest is a similarity query.
type SearchRequest struct {
	Vector []float32 `json:"vector"`
	Limit  int       `json:"limit"`
	Filter Filter    `json:"filter,omitempty"`

	// BudgetMs rejects the query with KindBudgetExceeded when the server estimates
	// it will take longer. Zero means no budget.
	BudgetMs int `json:"budget_ms,omitempty"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ID       string         `json:"id" validate:"required"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResponse is the response of Search.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required,dive"`
	TookMs  int64          `json:"took_ms" validate:"gte=0"`
}

// HistoricalLatency is observed latency for similar queries.
type HistoricalLatency struct {
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// CostEstimate is the server's prediction for a search.
// HistoricalLatency is nil when the server has no history for the query shape.
type CostEstimate struct {
	EstimatedMs           float64            `json:"estimated_ms" validate:"gte=0"`
	EstimatedNodesVisited int64              `json:"estimated_nodes_visited" validate:"gte=0"`
	EstimatedMemoryBytes  int64              `json:"estimated_memory_bytes,omitempty"`
	IsExpensive           bool               `json:"is_expensive"`
	HistoricalLatency     *HistoricalLatency `json:"historical_latency,omitempty"`
	Recommendations       []string           `json:"recommendations,omitempty"`
}

// ExplainStep is one stage of a query plan.
type ExplainStep struct {
	Name        string  `json:"name" validate:"required"`
	Detail      string  `json:"detail,omitempty"`
	EstimatedMs float64 `json:"estimated_ms"`
}

// Explanation describes how the server would execute a search.
type Explanation struct {
	QueryType string        `json:"query_type" validate:"required"`
	IndexType string        `json:"index_type"`
	Steps     []ExplainStep `json:"steps" validate:"required,dive"`
	Estimate  *CostEstimate `json:"estimate,omitempty"`
}

// FusionStrategy selects how hybrid search combines text and vector rankings.
type FusionStrategy string

const (
	FusionLinear FusionStrategy = "linear"
	FusionRRF    FusionStrategy = "rrf"
)

// Default fusion parameters.
const (
	DefaultFusionAlpha = 0.5
	DefaultFusionRRFK  = 60
)

// Fusion configures hybrid ranking. Alpha is the vector weight of the linear
// strategy in [0,1]; K is the rank-smoothing constant of reciprocal-rank fusion.
type Fusion struct {
	Strategy FusionStrategy `json:"strategy"`
	Alpha    *float64       `json:"alpha,omitempty"`
	K        *int           `json:"k,omitempty"`
}

// LinearFusion weights the vector score by alpha and the text score by 1-alpha.
func LinearFusion(alpha float64) *Fusion {
	return &Fusion{Strategy: FusionLinear, Alpha: &alpha}
}

// RRFFusion combines ranks with reciprocal-rank fusion using constant k.
func RRFFusion(k int) *Fusion {
	return &Fusion{Strategy: FusionRRF, K: &k}
}

// HybridSearchRequest combines a text query and a vector query. The collection must
// have been created with EnableBM25.
type HybridSearchRequest struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
	Limit  int       `json:"limit"`
	Filter Filter    `json:"filter,omitempty"`
	Fusion *Fusion   `json:"fusion,omitempty"`
}

// HybridResult is one hit of a hybrid search.
type HybridResult struct {
	ID          string         `json:"id" validate:"required"`
	Score       float64        `json:"score"`
	VectorScore *float64       `json:"vector_score,omitempty"`
	TextScore   *float64       `json:"text_score,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HybridSearchResponse is the response of HybridSearch.
type HybridSearchResponse struct {
	Results []HybridResult `json:"results" validate:"required,dive"`
	TookMs  int64          `json:"took_ms" validate:"gte=0"`
}

// =============================================================================
// Reindex
// =============================================================================

// JobState is the lifecycle state of a reindex job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobBuilding  JobState = "building"
	JobSwapping  JobState = "swapping"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// jobOrder is the linear progression of non-failed states.
var jobOrder = map[JobState]int{
	JobQueued:    0,
	JobBuilding:  1,
	JobSwapping:  2,
	JobCompleted: 3,
}

// IsTerminal reports whether no further transitions are possible.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether next may follow s: one step forward along
// queued → building → swapping → completed, or to failed from any non-terminal state.
func (s JobState) CanTransition(next JobState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == JobFailed {
		return true
	}
	cur, ok := jobOrder[s]
	if !ok {
		return false
	}
	n, ok := jobOrder[next]
	return ok && n == cur+1
}

// ReindexJob is a server-side index rebuild.
type ReindexJob struct {
	ID          string   `json:"job_id" validate:"required"`
	Collection  string   `json:"collection"`
	State       JobState `json:"state" validate:"oneof=queued building swapping completed failed"`
	Progress    float64  `json:"progress" validate:"gte=0,lte=1"`
	StartedAt   int64    `json:"started_at"`
	CompletedAt *int64   `json:"completed_at,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type listReindexJobsResponse struct {
	Jobs []ReindexJob `json:"jobs" validate:"required,dive"`
}

// =============================================================================
// Keys
// =============================================================================

// APIKey is key metadata. The secret is never included.
type APIKey struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Prefix     string `json:"prefix" validate:"required"`
	CreatedAt  int64  `json:"created_at"`
	LastUsedAt *int64 `json:"last_used_at,omitempty"`
}

// CreatedKey is returned once by CreateKey. Key holds the raw secret and cannot be
// retrieved again.
type CreatedKey struct {
	APIKey
	Key string `json:"key" validate:"required"`
}

type listKeysResponse struct {
	Keys []APIKey `json:"keys" validate:"required,dive"`
}

// =============================================================================
// Health
// =============================================================================

// Health is the server health report.
type Health struct {
	Status  string `json:"status" validate:"required"`
	Version string `json:"version"`
}

// =============================================================================
// Streaming
// =============================================================================

// AckResult is the acknowledgement of a streamed upsert.
type AckResult struct {
	Upserted int   `json:"upserted"`
	Failed   int   `json:"failed"`
	TookMs   int64 `json:"took_ms"`
}

// EventFilter narrows a subscription to the listed actions (e.g. "upsert", "delete").
// An empty filter receives all actions. The server enforces it.
type EventFilter struct {
	Actions []string
}

// Event is a server-initiated change notification.
type Event struct {
	Collection string
	Action     string
	PointIDs   []string
	Timestamp  int64
	Data       json.RawMessage
}
