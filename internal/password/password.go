// Package password implements credential hashing, verification, strength
// policy, and secure random generation on top of bcrypt.
package password

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost lands near 300ms per hash on reference hardware.
	DefaultCost = 12

	// bcrypt only consumes the first 72 bytes of input. We truncate
	// explicitly so hash and verify agree on the retained prefix.
	maxInputBytes = 72

	// MinLength is the strength-policy floor.
	MinLength = 8

	specialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"
)

// Hasher defines the contract for password operations. The interface exists
// so tests can swap in a cheap fake; hashing at production cost blocks a
// worker for hundreds of milliseconds.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implements Hasher using bcrypt with a configurable cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher. A cost outside bcrypt's supported range
// falls back to DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of the password.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(truncate(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// Verify reports whether plain matches hash. The comparison is constant-time
// in the compared bytes (bcrypt.CompareHashAndPassword).
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncate(plain)) == nil
}

// NeedsRehash reports whether the hash was produced with a work factor other
// than the configured one, so the caller can silently re-hash on the next
// successful verify.
func (h *BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.cost
}

func truncate(plain string) []byte {
	b := []byte(plain)
	if len(b) > maxInputBytes {
		b = b[:maxInputBytes]
	}
	return b
}

// ValidateStrength checks the password policy in order and reports the first
// failure. The returned message is safe to show to clients.
func ValidateStrength(plain string) (bool, string) {
	if len(plain) < MinLength {
		return false, fmt.Sprintf("Password must be at least %d characters long", MinLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return false, "Password must contain at least one uppercase letter"
	case !hasLower:
		return false, "Password must contain at least one lowercase letter"
	case !hasDigit:
		return false, "Password must contain at least one digit"
	case !hasSpecial:
		return false, "Password must contain at least one special character"
	}

	return true, ""
}

// GenerateRandom produces a password of the given length that passes the
// strength policy: one character from each required class, the remainder
// drawn uniformly, the whole string shuffled. All randomness comes from
// crypto/rand.
func GenerateRandom(length int) (string, error) {
	if length < MinLength {
		length = MinLength
	}

	all := upperChars + lowerChars + digitChars + specialChars

	chars := make([]byte, 0, length)
	for _, class := range []string{upperChars, lowerChars, digitChars, specialChars} {
		c, err := randomFrom(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randomFrom(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates with crypto/rand indices.
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomFrom(set string) (byte, error) {
	i, err := randomInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randomInt(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("randomInt: non-positive bound")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return int(v.Int64()), nil
}
