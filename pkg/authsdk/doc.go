/*
Package authsdk is the Go client and wire types for the session authentication
service.

# Client

A Client talks to the four session endpoints:

	c := authsdk.NewClient("https://auth.example.com")

	login, err := c.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == authsdk.KindInvalidCredentials {
			// wrong email or password
		}
	}

	me, err := c.Me(ctx, login.AccessToken)

	refreshed, err := c.Refresh(ctx, login.RefreshToken)

	err = c.Logout(ctx, login.RefreshToken)

Access tokens are short lived. Refresh returns a new access token and leaves
the refresh token unchanged, so callers keep using the refresh token they got
from Login until it expires or is logged out.

# Errors

Non-2xx responses are returned as *APIError carrying the HTTP status and the
error kind from the response body. The predefined values (ErrInvalidToken and
friends) match any APIError of the same kind under errors.Is:

	if errors.Is(err, authsdk.ErrInvalidToken) {
		// log in again
	}

The server writes the same values, so the kinds and messages seen by
clients are defined in one place.
*/
package authsdk
