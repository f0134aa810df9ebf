package ferresdb

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// GetPoint returns a single point.
func (c *Client) GetPoint(ctx context.Context, collection, id string, opts ...CallOption) (*Point, error) {
	if id == "" {
		return nil, invalidPayload("point id is required")
	}
	body, err := c.execute(ctx, http.MethodGet, collectionPath(collection, "points", url.PathEscape(id)), nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[Point]("get point", body)
}

// ListPoints returns one page of points starting at offset.
func (c *Client) ListPoints(ctx context.Context, collection string, limit, offset int, opts ...CallOption) (*PointPage, error) {
	if limit <= 0 {
		return nil, invalidPayload("limit must be positive")
	}
	if offset < 0 {
		return nil, invalidPayload("offset must not be negative")
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	path := collectionPath(collection, "points") + "?" + q.Encode()

	body, err := c.execute(ctx, http.MethodGet, path, nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[PointPage]("list points", body)
}

type deletePointsRequest struct {
	IDs []string `json:"ids"`
}

// DeletePoints deletes points by id.
//
// An empty ids slice is rejected locally with an ErrInvalidPayload-kind error and
// no request is sent.
func (c *Client) DeletePoints(ctx context.Context, collection string, ids []string, opts ...CallOption) (*DeleteResult, error) {
	if len(ids) == 0 {
		return nil, invalidPayload("refusing to delete with an empty id list")
	}
	body, err := c.execute(ctx, http.MethodDelete, collectionPath(collection, "points"), deletePointsRequest{IDs: ids}, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[DeleteResult]("delete points", body)
}
