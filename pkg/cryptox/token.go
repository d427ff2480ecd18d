package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Token sizes in bytes before encoding.
const (
	// TokenSize128 is the smallest size GenerateToken accepts (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 is the size used for refresh tokens (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken returns size random bytes from crypto/rand encoded as
// unpadded base64url. Sizes below TokenSize128 are rejected so every opaque
// credential carries at least 128 bits of entropy.
func GenerateToken(size int) (string, error) {
	if size < TokenSize128 {
		return "", fmt.Errorf("token size must be at least %d bytes, got %d", TokenSize128, size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateRefreshToken returns a new opaque refresh token.
func GenerateRefreshToken() (string, error) {
	return GenerateToken(TokenSize256)
}

// FingerprintToken returns the SHA-256 of token as base64url (43 chars).
// Stores key opaque tokens by fingerprint so the raw value never hits disk.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
