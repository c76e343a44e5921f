package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeRange covers [100000, 999999]: always six digits, no leading-zero
// truncation possible.
const (
	codeMin   = 100000
	codeRange = 900000
)

// New generates a uniformly random 6-digit numeric code from crypto/rand.
func New() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", codeMin+n.Int64()), nil
}
