package authsdk

// TokenTypeBearer is the only token type the service issues.
const TokenTypeBearer = "Bearer"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// User is the public projection of an account. It never carries credentials.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Profile string `json:"profile"`
}

// LoginResponse is returned by POST /v1/auth/login. ExpiresIn is the access
// token lifetime in seconds.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	User         User   `json:"user"`
}

// RefreshResponse is returned by POST /v1/auth/refresh.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
	User        User   `json:"user"`
}

type LogoutResponse struct {
	Message string `json:"message"`
}

type MeResponse struct {
	User User `json:"user"`
}
