package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows migrating
// the encoding without colliding with old digests.
const (
	DomainTimeline = "rill/timeline/v1"
	DomainScenario = "rill/scenario/v1"
)

// Hash computes SHA-256 over domain, a 0x00 separator and data, hex encoded.
// The separator keeps the domain/data boundary unambiguous.
func Hash(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashValue canonically encodes v and hashes it under domain.
func HashValue(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return Hash(domain, data), nil
}
