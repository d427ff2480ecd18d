package cryptox

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor used when none is configured.
const DefaultPasswordCost = 10

// MaxPasswordLength is the longest plaintext bcrypt will accept, in bytes.
const MaxPasswordLength = 72

var (
	ErrPasswordTooLong = errors.New("cryptox: password exceeds 72 bytes")
	ErrInvalidCost     = errors.New("cryptox: bcrypt cost out of range")
)

// PasswordHasher hashes and verifies passwords with bcrypt at a fixed cost.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using the given bcrypt cost.
// A zero cost selects DefaultPasswordCost.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = DefaultPasswordCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCost, cost)
	}
	return &PasswordHasher{cost: cost}, nil
}

// Cost reports the configured work factor.
func (h *PasswordHasher) Cost() int { return h.cost }

// Hash returns the bcrypt encoding of password. The salt is embedded in the result.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches the stored bcrypt hash.
// Malformed or empty hashes never match.
func (h *PasswordHasher) Verify(password, hash string) bool {
	if hash == "" || len(password) > MaxPasswordLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash was produced with a different cost than
// the hasher is configured for.
func (h *PasswordHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.cost
}
