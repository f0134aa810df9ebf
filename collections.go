package ferresdb

import (
	"context"
	"net/http"
)

// CreateCollection creates a collection.
//
// Name, Dimension and Distance are checked locally before any request is made.
// Optional fields left at their zero value are omitted from the request body.
//
// Example:
//
//	coll, err := client.CreateCollection(ctx, ferresdb.CreateCollectionRequest{
//	    Name:          "docs",
//	    Dimension:     384,
//	    Distance:      ferresdb.DistanceCosine,
//	    EnableBM25:    true,
//	    BM25TextField: "content",
//	})
//	if errors.Is(err, ferresdb.ErrAlreadyExists) {
//	    // reuse the existing collection
//	}
func (c *Client) CreateCollection(ctx context.Context, req CreateCollectionRequest, opts ...CallOption) (*Collection, error) {
	if req.Name == "" {
		return nil, invalidPayload("collection name is required")
	}
	if req.Dimension <= 0 {
		return nil, &Error{Kind: KindInvalidDimension, Message: "dimension must be positive"}
	}
	if !req.Distance.Valid() {
		return nil, invalidPayload("unknown distance %q", req.Distance)
	}
	if q := req.Quantization; q != nil && q.Type != QuantizationNone && q.Type != QuantizationScalar {
		return nil, invalidPayload("unknown quantization type %q", q.Type)
	}

	body, err := c.execute(ctx, http.MethodPost, "/collections", req, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[Collection]("create collection", body)
}

// ListCollections returns all collections.
// CollectionInfo.Distance is nil for servers that do not report it.
func (c *Client) ListCollections(ctx context.Context, opts ...CallOption) ([]CollectionInfo, error) {
	body, err := c.execute(ctx, http.MethodGet, "/collections", nil, opts...)
	if err != nil {
		return nil, err
	}
	res, err := decodeResponse[listCollectionsResponse]("list collections", body)
	if err != nil {
		return nil, err
	}
	return res.Collections, nil
}

// GetCollection returns a collection by name.
func (c *Client) GetCollection(ctx context.Context, name string, opts ...CallOption) (*Collection, error) {
	if name == "" {
		return nil, invalidPayload("collection name is required")
	}
	body, err := c.execute(ctx, http.MethodGet, collectionPath(name), nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[Collection]("get collection", body)
}

// DeleteCollection deletes a collection and all of its points.
// Repeating the call for a deleted collection returns an ErrNotFound-kind error.
func (c *Client) DeleteCollection(ctx context.Context, name string, opts ...CallOption) error {
	if name == "" {
		return invalidPayload("collection name is required")
	}
	_, err := c.execute(ctx, http.MethodDelete, collectionPath(name), nil, opts...)
	return err
}

// CollectionTiers reports point counts and sizes per storage tier.
func (c *Client) CollectionTiers(ctx context.Context, name string, opts ...CallOption) (*CollectionTiers, error) {
	if name == "" {
		return nil, invalidPayload("collection name is required")
	}
	body, err := c.execute(ctx, http.MethodGet, collectionPath(name, "tiers"), nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[CollectionTiers]("collection tiers", body)
}

// Health reports server status.
func (c *Client) Health(ctx context.Context, opts ...CallOption) (*Health, error) {
	body, err := c.execute(ctx, http.MethodGet, "/health", nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[Health]("health", body)
}
