package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	codec := NewTokenCodec("test-secret")

	encoded, err := codec.Encode(&PageToken{StartID: 42})
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded := codec.Decode(encoded)
	require.NotNil(t, decoded)
	assert.Equal(t, int64(42), decoded.StartID)
}

func TestTokenOpaque(t *testing.T) {
	codec := NewTokenCodec("test-secret")

	encoded, err := codec.Encode(&PageToken{StartID: 7})
	require.NoError(t, err)
	assert.NotContains(t, encoded, "7")
	assert.NotContains(t, encoded, "start_id")
}

func TestTokenNondeterministicEncoding(t *testing.T) {
	codec := NewTokenCodec("test-secret")

	a, err := codec.Encode(&PageToken{StartID: 1})
	require.NoError(t, err)
	b, err := codec.Encode(&PageToken{StartID: 1})
	require.NoError(t, err)

	// Random nonces make identical tokens encode differently.
	assert.NotEqual(t, a, b)
}

func TestDecodeInvalidTokens(t *testing.T) {
	codec := NewTokenCodec("test-secret")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"too short", "YWJj"},
		{"garbage", "dGhpcyBpcyBub3QgYSB2YWxpZCB0b2tlbiBhdCBhbGwgbm9wZQ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, codec.Decode(tt.token))
		})
	}
}

func TestDecodeTamperedToken(t *testing.T) {
	codec := NewTokenCodec("test-secret")

	encoded, err := codec.Encode(&PageToken{StartID: 99})
	require.NoError(t, err)

	tampered := []byte(encoded)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	assert.Nil(t, codec.Decode(string(tampered)))
}

func TestDecodeWrongKey(t *testing.T) {
	encoded, err := NewTokenCodec("key-one").Encode(&PageToken{StartID: 5})
	require.NoError(t, err)

	assert.Nil(t, NewTokenCodec("key-two").Decode(encoded))
}
