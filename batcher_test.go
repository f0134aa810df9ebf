package ferresdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferres-db/ferresdb-go/ferresdbtest"
)

func TestPlanBatches(t *testing.T) {
	tests := []struct {
		n        int
		wantLens []int
	}{
		{0, nil},
		{1, []int{1}},
		{1000, []int{1000}},
		{1001, []int{1000, 1}},
		{2500, []int{1000, 1000, 500}},
		{3000, []int{1000, 1000, 1000}},
	}

	for _, tt := range tests {
		points := makePoints(tt.n, 2)
		batches := planBatches(points, MaxBatchSize)

		var lens []int
		var flat []Point
		for _, b := range batches {
			lens = append(lens, len(b))
			flat = append(flat, b...)
		}
		assert.Equal(t, tt.wantLens, lens, "n=%d", tt.n)
		if tt.n > 0 {
			assert.Equal(t, points, flat, "order must be preserved")
		}
	}
}

func TestUpsert_EmptyInputMakesNoRequest(t *testing.T) {
	c, transport, _ := newTransportClient(t, testConfig("http://db.test"))

	res, err := c.Upsert(context.Background(), "docs", nil)

	require.NoError(t, err)
	assert.Equal(t, &UpsertResult{Upserted: 0, Failed: []FailedPoint{}}, res)
	assert.Empty(t, transport.Requests())
}

func TestUpsert_SingleRequestPassesResultThrough(t *testing.T) {
	c, transport, _ := newTransportClient(t, testConfig("http://db.test"))
	transport.AddJSONResponse(200, map[string]any{
		"upserted": 999,
		"failed":   []map[string]string{{"id": "p7", "error": "bad vector"}},
	})

	res, err := c.Upsert(context.Background(), "docs", makePoints(1000, 2))

	require.NoError(t, err)
	assert.Equal(t, 999, res.Upserted)
	assert.Equal(t, []FailedPoint{{ID: "p7", Error: "bad vector"}}, res.Failed)

	reqs := transport.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/collections/docs/points", reqs[0].Path)

	var body struct {
		Points []Point `json:"points"`
	}
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Len(t, body.Points, 1000)
}

func TestUpsert_SplitsSequentiallyAndAggregates(t *testing.T) {
	c, transport, _ := newTransportClient(t, testConfig("http://db.test"))
	transport.AddJSONResponse(200, map[string]any{
		"upserted": 999,
		"failed":   []map[string]string{{"id": "p1", "error": "a"}},
	})
	transport.AddJSONResponse(200, map[string]any{
		"upserted": 1000,
		"failed":   []map[string]string{},
	})
	transport.AddJSONResponse(200, map[string]any{
		"upserted": 498,
		"failed":   []map[string]string{{"id": "p2001", "error": "b"}, {"id": "p2499", "error": "c"}},
	})

	points := makePoints(2500, 4)
	res, err := c.Upsert(context.Background(), "docs", points)

	require.NoError(t, err)
	assert.Equal(t, 999+1000+498, res.Upserted)
	assert.Equal(t, []FailedPoint{
		{ID: "p1", Error: "a"},
		{ID: "p2001", Error: "b"},
		{ID: "p2499", Error: "c"},
	}, res.Failed)

	reqs := transport.Requests()
	require.Len(t, reqs, 3)
	for i, want := range [][2]string{{"p0", "p999"}, {"p1000", "p1999"}, {"p2000", "p2499"}} {
		var body struct {
			Points []Point `json:"points"`
		}
		require.NoError(t, json.Unmarshal(reqs[i].Body, &body))
		assert.Equal(t, want[0], body.Points[0].ID)
		assert.Equal(t, want[1], body.Points[len(body.Points)-1].ID)
	}
}

func TestUpsert_ChunkFailureAbortsRemaining(t *testing.T) {
	c, transport, _ := newTransportClient(t, testConfig("http://db.test"))
	transport.AddJSONResponse(200, map[string]any{"upserted": 1000, "failed": []any{}})
	transport.AddError(400, "invalid_dimension", "expected 4, got 3")

	_, err := c.Upsert(context.Background(), "docs", makePoints(3500, 4))

	assert.ErrorIs(t, err, ErrInvalidDimension)
	assert.Len(t, transport.Requests(), 2, "chunks after the failure must not be sent")
}

func TestUpsert_AgainstMockServer(t *testing.T) {
	c, server, _ := newMockClient(t)
	createDocs(t, c, 4)

	points := makePoints(1500, 4)
	points = append(points, Point{ID: "short", Vector: []float32{1}})

	res, err := c.Upsert(context.Background(), "docs", points)

	require.NoError(t, err)
	assert.Equal(t, 1500, res.Upserted)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "short", res.Failed[0].ID)

	n, ok := server.PointCount("docs")
	require.True(t, ok)
	assert.Equal(t, 1500, n)
	assert.Equal(t, 2, server.RequestCount(http.MethodPost, "/collections/docs/points"))
}

func TestUpsert_MissingCollection(t *testing.T) {
	c, _, _ := newMockClient(t)

	_, err := c.Upsert(context.Background(), "ghost", makePoints(3, 2))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindNotFound, fe.Kind)
	assert.Equal(t, "ghost", fe.Resource)
}

func TestUpsert_RetriesChunkOnServerError(t *testing.T) {
	c, server, rec := newMockClient(t)
	createDocs(t, c, 2)
	server.FailNext(ferresdbtest.Failure{Status: 503, Code: "internal_error", Message: "overloaded"})

	res, err := c.Upsert(context.Background(), "docs", makePoints(5, 2))

	require.NoError(t, err)
	assert.Equal(t, 5, res.Upserted)
	assert.Len(t, rec.Delays(), 1)
}
