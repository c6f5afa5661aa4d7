package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// opaqueTokenBytes is the entropy of refresh, verification and reset
// tokens.
const opaqueTokenBytes = 32

// generateOpaqueToken returns a URL-safe random secret.
func generateOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
