package security

import (
	"crypto/rand"
	"encoding/base64"
)

// tokenIDBytes is the entropy of a refresh-token id. 48 bytes keeps the handle
// comfortably above the 40-byte floor required for unguessability.
const tokenIDBytes = 48

// NewTokenID returns a cryptographically random, URL-safe refresh-token id.
// The id is the persisted revocation handle for a refresh token; it is opaque
// and unrelated to the signed token that embeds it.
func NewTokenID() (string, error) {
	b := make([]byte, tokenIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
