package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Digest represents a content-addressable digest (e.g., sha256:abc123...)
type Digest string

// Algorithm returns the algorithm part of the digest (e.g., "sha256")
func (d Digest) Algorithm() string {
	parts := strings.SplitN(string(d), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// Hex returns the hex-encoded hash part
func (d Digest) Hex() string {
	parts := strings.SplitN(string(d), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// Validate checks if the digest is well-formed
func (d Digest) Validate() error {
	if d.Algorithm() == "" || d.Hex() == "" {
		return fmt.Errorf("invalid digest format: %s", d)
	}
	if d.Algorithm() != "sha256" {
		return fmt.Errorf("unsupported algorithm: %s", d.Algorithm())
	}
	if len(d.Hex()) != 64 {
		return fmt.Errorf("invalid sha256 length: %d", len(d.Hex()))
	}
	return nil
}

// String returns the string representation
func (d Digest) String() string {
	return string(d)
}

// FromBytes computes a sha256 digest from bytes
func FromBytes(data []byte) Digest {
	h := sha256.Sum256(data)
	return Digest("sha256:" + hex.EncodeToString(h[:]))
}
