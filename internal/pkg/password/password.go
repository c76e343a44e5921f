package password

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/challenges-api/internal/domain"
)

// Symbols is the set of accepted special characters.
const Symbols = "-#$.%&@!+=<>*"

const minLength = 8

// Validate enforces the account password policy: at least 8 characters, at
// least one letter, one digit and one symbol from Symbols.
func Validate(pw string) error {
	if len(pw) < minLength {
		return fmt.Errorf("password must be at least %d characters: %w", minLength, domain.ErrWeakPassword)
	}
	var hasLetter, hasDigit, hasSymbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(Symbols, r):
			hasSymbol = true
		}
	}
	if !hasLetter {
		return fmt.Errorf("password must contain a letter: %w", domain.ErrWeakPassword)
	}
	if !hasDigit {
		return fmt.Errorf("password must contain a digit: %w", domain.ErrWeakPassword)
	}
	if !hasSymbol {
		return fmt.Errorf("password must contain a symbol from %q: %w", Symbols, domain.ErrWeakPassword)
	}
	return nil
}
