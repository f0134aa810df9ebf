package ferresdb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateKey_EmptyNameMakesNoRequest(t *testing.T) {
	for _, name := range []string{"", "   "} {
		c, transport, _ := newTransportClient(t, testConfig("http://db.test"))

		_, err := c.CreateKey(context.Background(), name)

		assert.ErrorIs(t, err, ErrInvalidPayload)
		assert.Empty(t, transport.Requests())
	}
}

func TestKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMockClient(t)

	created, err := c.CreateKey(ctx, "ci")
	require.NoError(t, err)
	assert.Equal(t, "ci", created.Name)
	assert.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.Key)
	assert.True(t, strings.HasPrefix(created.Key, created.Prefix))

	keys, err := c.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, created.APIKey, keys[0])

	require.NoError(t, c.DeleteKey(ctx, created.ID))
	keys, err = c.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	err = c.DeleteKey(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, c.DeleteKey(ctx, ""), ErrInvalidPayload)
}

func TestCreatedKey_RejectsMissingSecret(t *testing.T) {
	c, transport, _ := newTransportClient(t, testConfig("http://db.test"))
	transport.AddJSONResponse(201, map[string]any{
		"id": "k1", "name": "ci", "prefix": "fdb_1234", "created_at": 1,
	})

	_, err := c.CreateKey(context.Background(), "ci")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "key")
}
