package domain

import "time"

// Session is what a successful login or refresh hands back. RefreshToken is
// only set by login; refresh reuses the caller's token.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         PublicUser
}

// Identity is the authenticated subject decoded from an access token.
type Identity struct {
	UserID  string
	Email   string
	Profile Profile
}

// RefreshToken models the stored refresh token record.
type RefreshToken struct {
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsValid reports whether the token is still usable at now.
func (t RefreshToken) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
