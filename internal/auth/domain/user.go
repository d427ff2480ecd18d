package domain

import "time"

// Profile is the role label carried in access tokens.
type Profile string

const (
	ProfileInvestor Profile = "INVESTOR"
	ProfilePartner  Profile = "PARTNER"
	ProfileAdmin    Profile = "ADMIN"
)

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string // bcrypt encoded
	Profile      Profile
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the projection of a User that may leave the service.
type PublicUser struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Profile Profile `json:"profile"`
}

// Public returns the user's public projection.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Profile: u.Profile,
	}
}
