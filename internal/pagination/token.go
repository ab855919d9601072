// Package pagination implements the cursor subsystem for list
// endpoints: an encrypted numeric-id token for the catalog family and a
// plain last-name cursor for the OCI tag listing, both emitting
// rel="next" continuation links.
package pagination

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// PageToken is the decrypted form of an opaque continuation cursor.
type PageToken struct {
	StartID int64 `json:"start_id"`
}

// TokenCodec seals page tokens into opaque strings. Tokens from a
// different key, or tampered tokens, simply fail to decode.
type TokenCodec struct {
	key [32]byte
}

// NewTokenCodec derives the sealing key from the configured secret.
func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{key: sha256.Sum256([]byte(secret))}
}

// Encode seals the token into an opaque URL-safe string.
func (c *TokenCodec) Encode(token *PageToken) (string, error) {
	plaintext, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("marshaling page token: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating token nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens an opaque token. An absent, malformed, or tampered token
// yields nil: pagination degrades to "start from the beginning" rather
// than failing the request.
func (c *TokenCodec) Decode(token string) *PageToken {
	if token == "" {
		return nil
	}

	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(sealed) < 24 {
		return nil
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &c.key)
	if !ok {
		return nil
	}

	var decoded PageToken
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return nil
	}
	return &decoded
}
