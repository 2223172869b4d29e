package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenByteLength sets the entropy for minted internal secrets: 32 random
// bytes hex-encode to 64 characters, well past the 16-character floor the
// config layer enforces on the ops token.
const tokenByteLength = 32

// GenerateSecureToken mints a random token for high-privilege internal
// secrets like the ops API token. The value comes from crypto/rand and is
// hex-encoded; it is never shown to the operator.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if n, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	} else if n != tokenByteLength {
		return "", fmt.Errorf("generating secure token: expected %d random bytes, got %d", tokenByteLength, n)
	}
	return hex.EncodeToString(buf), nil
}
