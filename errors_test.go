package ferresdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		message      string
		status       int
		wantKind     ErrorKind
		wantResource string
	}{
		{
			name:         "collection not found",
			code:         "collection_not_found",
			message:      "collection 'docs' not found",
			status:       404,
			wantKind:     KindNotFound,
			wantResource: "docs",
		},
		{
			name:     "not found without quoted name",
			code:     "not_found",
			message:  "no such thing",
			status:   404,
			wantKind: KindNotFound,
		},
		{
			name:         "already exists",
			code:         "collection_already_exists",
			message:      "collection 'docs' already exists",
			status:       409,
			wantKind:     KindAlreadyExists,
			wantResource: "docs",
		},
		{
			name:         "reindex in progress",
			code:         "reindex_in_progress",
			message:      "reindex already running for collection 'docs'",
			status:       409,
			wantKind:     KindAlreadyExists,
			wantResource: "docs",
		},
		{
			name:     "dimension mismatch",
			code:     "dimension_mismatch",
			message:  "expected 3, got 4",
			status:   400,
			wantKind: KindInvalidDimension,
		},
		{
			name:     "invalid payload",
			code:     "invalid_request",
			message:  "bad",
			status:   400,
			wantKind: KindInvalidPayload,
		},
		{
			name:     "internal",
			code:     "internal_error",
			message:  "boom",
			status:   500,
			wantKind: KindInternal,
		},
		{
			name:     "unrecognized identifier",
			code:     "rate_limited",
			message:  "slow down",
			status:   429,
			wantKind: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewError(tt.code, tt.message, tt.status, nil)
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, tt.wantResource, err.Resource)
			assert.Nil(t, err.Estimate)
		})
	}
}

func TestNewError_BudgetExceededEstimate(t *testing.T) {
	extra := json.RawMessage(`{
		"error": "budget_exceeded",
		"message": "too slow",
		"code": 422,
		"estimate": {
			"estimated_ms": 12.5,
			"estimated_nodes_visited": 4096,
			"is_expensive": true,
			"historical_latency": {"p50_ms": 3, "p95_ms": 9, "p99_ms": 14}
		}
	}`)

	err := NewError("budget_exceeded", "too slow", 422, extra)
	require.Equal(t, KindBudgetExceeded, err.Kind)
	require.NotNil(t, err.Estimate)
	assert.Equal(t, &CostEstimate{
		EstimatedMs:           12.5,
		EstimatedNodesVisited: 4096,
		IsExpensive:           true,
		HistoricalLatency:     &HistoricalLatency{P50Ms: 3, P95Ms: 9, P99Ms: 14},
	}, err.Estimate)
}

func TestNewError_BudgetExceededWithoutEstimate(t *testing.T) {
	err := NewError("budget_exceeded", "too slow", 422, json.RawMessage(`not json`))
	assert.Equal(t, KindBudgetExceeded, err.Kind)
	assert.Nil(t, err.Estimate)
}

func TestErrorFromResponse(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    ErrorKind
		wantMessage string
	}{
		{"documented body", 404, `{"error":"point_not_found","message":"point 'a' not found","code":404}`, KindNotFound, "point 'a' not found"},
		{"plain text 503", 503, "upstream unavailable", KindInternal, "upstream unavailable"},
		{"empty 404", 404, "", KindNotFound, "Not Found"},
		{"empty 409", 409, "", KindAlreadyExists, "Conflict"},
		{"json without identifier", 422, `{"detail":"x"}`, KindInvalidPayload, `{"detail":"x"}`},
		{"teapot", 418, "", KindUnknown, "I'm a teapot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errorFromResponse(tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, tt.wantMessage, err.Message)
		})
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError("key_not_found", "key 'k' not found", 404, nil))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAlreadyExists)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "k", fe.Resource)
}

func TestError_UnwrapCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := connectionError("sending request", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "connection")
	assert.Contains(t, err.Error(), "refused")
}

func TestError_Retryable(t *testing.T) {
	assert.True(t, (&Error{Kind: KindConnection}).Retryable())
	assert.True(t, (&Error{Kind: KindInternal, StatusCode: 502}).Retryable())
	assert.True(t, (&Error{Kind: KindUnknown, StatusCode: 599}).Retryable())
	assert.False(t, (&Error{Kind: KindNotFound, StatusCode: 404}).Retryable())
	assert.False(t, (&Error{Kind: KindBudgetExceeded, StatusCode: 422}).Retryable())
	assert.False(t, invalidPayload("x").Retryable())
}
