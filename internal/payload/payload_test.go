package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type review struct {
	OrderID string `json:"orderId" cbor:"orderId"`
	Rating  int    `json:"rating" cbor:"rating"`
}

func TestCodecs(t *testing.T) {
	for _, c := range []Codec{JSON{}, CBOR{}} {
		t.Run(c.ContentType(), func(t *testing.T) {
			data, err := c.Marshal(review{OrderID: "42", Rating: 5})
			require.NoError(t, err)

			var got review
			require.NoError(t, c.Unmarshal(data, &got))
			assert.Equal(t, review{OrderID: "42", Rating: 5}, got)

			assert.Error(t, c.Unmarshal([]byte{0xff, 0x00}, &got))
		})
	}
}

func TestJSON_Wire(t *testing.T) {
	data, err := JSON{}.Marshal(review{OrderID: "42", Rating: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":"42","rating":5}`, string(data))
}

func TestLookup(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", ContentTypeJSON, false},
		{"application/json", ContentTypeJSON, false},
		{"application/json;charset=utf-8", ContentTypeJSON, false},
		{"text/json", ContentTypeJSON, false},
		{"application/cbor", ContentTypeCBOR, false},
		{"text/plain", "", true},
		{";;", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := Lookup(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedContentType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.ContentType())
		})
	}
}
