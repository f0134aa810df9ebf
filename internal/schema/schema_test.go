package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"gte=0"`
}

type listing struct {
	Items []item `json:"items" validate:"required,dive"`
	State string `json:"state" validate:"omitempty,oneof=open closed"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"items":[{"name":"a","count":1}],"state":"open"}`},
		{name: "empty list is present", body: `{"items":[]}`},
		{name: "unknown fields tolerated", body: `{"items":[],"extra":true}`},
		{name: "missing list", body: `{"state":"open"}`, wantErr: true, field: "items"},
		{name: "missing nested name", body: `{"items":[{"count":1}]}`, wantErr: true, field: "items[0].name"},
		{name: "negative count", body: `{"items":[{"name":"a","count":-1}]}`, wantErr: true, field: "items[0].count"},
		{name: "bad enum", body: `{"items":[],"state":"weird"}`, wantErr: true, field: "state"},
		{name: "wrong type", body: `{"items":"nope"}`, wantErr: true},
		{name: "data envelope", body: `{"data":{"items":[]}}`, wantErr: true, field: "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got listing
			err := Decode([]byte(tt.body), &got)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.field != "" {
				var fe Errors
				require.True(t, errors.As(err, &fe), "expected field errors, got %v", err)
				assert.Equal(t, tt.field, fe[0].Field)
			}
		})
	}
}

func TestDecode_EmptyBody(t *testing.T) {
	var got listing
	err := Decode([]byte("  "), &got)
	assert.ErrorIs(t, err, ErrEmptyBody)
}
