package authsdk

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Route paths served by the session service.
const (
	PathLogin   = "/v1/auth/login"
	PathRefresh = "/v1/auth/refresh"
	PathLogout  = "/v1/auth/logout"
	PathMe      = "/v1/auth/me"
)

// Client is a client for the session authentication service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL with a 10s request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Login exchanges an email and password for an access and refresh token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, PathLogin, "", LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh token
// stays valid.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	var out RefreshResponse
	if err := c.doJSON(ctx, http.MethodPost, PathRefresh, "", RefreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates refreshToken. Logging out an unknown or already revoked
// token succeeds.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	var out LogoutResponse
	return c.doJSON(ctx, http.MethodPost, PathLogout, "", LogoutRequest{RefreshToken: refreshToken}, &out)
}

// Me returns the user the access token belongs to.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, errors.New("authsdk: access token is required")
	}
	var out MeResponse
	if err := c.doJSON(ctx, http.MethodGet, PathMe, accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
