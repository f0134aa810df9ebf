package ferresdb

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeletePoints_EmptyIDsMakesNoRequest(t *testing.T) {
	for _, ids := range [][]string{nil, {}} {
		c, transport, _ := newTransportClient(t, testConfig("http://db.test"))

		_, err := c.DeletePoints(context.Background(), "docs", ids)

		var fe *Error
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, KindInvalidPayload, fe.Kind)
		assert.Zero(t, fe.StatusCode)
		assert.Empty(t, transport.Requests())
	}
}

func TestDeletePoints(t *testing.T) {
	ctx := context.Background()
	c, server, _ := newMockClient(t)
	createDocs(t, c, 2)
	_, err := c.Upsert(ctx, "docs", makePoints(5, 2))
	require.NoError(t, err)

	res, err := c.DeletePoints(ctx, "docs", []string{"p1", "p3", "missing"})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	n, _ := server.PointCount("docs")
	assert.Equal(t, 3, n)

	reqs := server.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, http.MethodDelete, last.Method)
	assert.JSONEq(t, `{"ids":["p1","p3","missing"]}`, string(last.Body))
}

func TestGetPoint(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMockClient(t)
	createDocs(t, c, 3)
	_, err := c.Upsert(ctx, "docs", []Point{
		{ID: "a/1", Vector: []float32{1, 2, 3}, Metadata: map[string]any{"title": "hello"}},
	})
	require.NoError(t, err)

	p, err := c.GetPoint(ctx, "docs", "a/1")
	require.NoError(t, err)
	assert.Equal(t, &Point{ID: "a/1", Vector: []float32{1, 2, 3}, Metadata: map[string]any{"title": "hello"}}, p)

	_, err = c.GetPoint(ctx, "docs", "nope")
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindNotFound, fe.Kind)
	assert.Equal(t, "nope", fe.Resource)

	_, err = c.GetPoint(ctx, "docs", "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestListPoints(t *testing.T) {
	ctx := context.Background()
	c, server, _ := newMockClient(t)
	createDocs(t, c, 2)
	_, err := c.Upsert(ctx, "docs", makePoints(5, 2))
	require.NoError(t, err)

	page, err := c.ListPoints(ctx, "docs", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Points, 2)
	assert.Equal(t, "p2", page.Points[0].ID)
	assert.Equal(t, "p3", page.Points[1].ID)

	reqs := server.Requests()
	assert.Equal(t, "limit=2&offset=2", reqs[len(reqs)-1].Query)

	_, err = c.ListPoints(ctx, "docs", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = c.ListPoints(ctx, "docs", 1, -1)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestAllPoints(t *testing.T) {
	ctx := context.Background()
	c, server, _ := newMockClient(t)
	createDocs(t, c, 2)
	_, err := c.Upsert(ctx, "docs", makePoints(2*DefaultPageSize+7, 2))
	require.NoError(t, err)

	var ids []string
	for p, err := range c.AllPoints(ctx, "docs") {
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	require.Len(t, ids, 2*DefaultPageSize+7)
	assert.Equal(t, "p0", ids[0])
	assert.Equal(t, pointID(2*DefaultPageSize+6), ids[len(ids)-1])
	assert.Equal(t, 3, server.RequestCount(http.MethodGet, "/collections/docs/points"))
}

func TestAllPoints_StopsEarly(t *testing.T) {
	ctx := context.Background()
	c, server, _ := newMockClient(t)
	createDocs(t, c, 2)
	_, err := c.Upsert(ctx, "docs", makePoints(3*DefaultPageSize, 2))
	require.NoError(t, err)

	n := 0
	for _, err := range c.AllPoints(ctx, "docs") {
		require.NoError(t, err)
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, server.RequestCount(http.MethodGet, "/collections/docs/points"))
}

func TestAllPoints_YieldsError(t *testing.T) {
	c, _, _ := newMockClient(t)

	var errs []error
	for _, err := range c.AllPoints(context.Background(), "ghost") {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNotFound)
}

func TestPointPages(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMockClient(t)
	createDocs(t, c, 2)
	_, err := c.Upsert(ctx, "docs", makePoints(DefaultPageSize, 2))
	require.NoError(t, err)

	var sizes []int
	for page, err := range c.PointPages(ctx, "docs") {
		require.NoError(t, err)
		sizes = append(sizes, len(page.Points))
	}
	assert.Equal(t, []int{DefaultPageSize}, sizes, "a full final page ends at Total")
}
