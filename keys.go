package ferresdb

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type createKeyRequest struct {
	Name string `json:"name"`
}

// CreateKey creates an API key. The returned Key field holds the raw secret and
// is only ever available in this response.
func (c *Client) CreateKey(ctx context.Context, name string, opts ...CallOption) (*CreatedKey, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidPayload("key name is required")
	}
	body, err := c.execute(ctx, http.MethodPost, "/keys", createKeyRequest{Name: name}, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[CreatedKey]("create key", body)
}

// ListKeys returns key metadata. Secrets are never included.
func (c *Client) ListKeys(ctx context.Context, opts ...CallOption) ([]APIKey, error) {
	body, err := c.execute(ctx, http.MethodGet, "/keys", nil, opts...)
	if err != nil {
		return nil, err
	}
	res, err := decodeResponse[listKeysResponse]("list keys", body)
	if err != nil {
		return nil, err
	}
	return res.Keys, nil
}

// DeleteKey revokes a key by id.
func (c *Client) DeleteKey(ctx context.Context, id string, opts ...CallOption) error {
	if id == "" {
		return invalidPayload("key id is required")
	}
	_, err := c.execute(ctx, http.MethodDelete, "/keys/"+url.PathEscape(id), nil, opts...)
	return err
}
