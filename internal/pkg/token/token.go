package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewRefreshToken generates a cryptographically random 64-character hex token.
func NewRefreshToken() (string, error) {
	return random(32, "refresh")
}

// NewResetToken generates the high-entropy token embedded in password-reset
// links. Unlike the 6-digit verification codes it must survive its longer
// lifetime without being brute-forceable.
func NewResetToken() (string, error) {
	return random(32, "reset")
}

func random(n int, kind string) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate %s token: %w", kind, err)
	}
	return hex.EncodeToString(b), nil
}
