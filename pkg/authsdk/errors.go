package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
)

// Error kinds carried in the "error" field of every error body.
const (
	KindValidation         = httpx.KindValidation
	KindInvalidCredentials = httpx.KindInvalidCredentials
	KindInvalidToken       = httpx.KindInvalidToken
	KindInactiveUser       = httpx.KindInactiveUser
	KindMissingCredential  = httpx.KindMissingCredential
	KindRateLimited        = httpx.KindRateLimited
	KindInternal           = httpx.KindInternal
)

// APIError is an error response from the service. The server writes it with
// WriteError; the client decodes responses back into it.
type APIError struct {
	StatusCode int    `json:"-"`
	Kind       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// Is matches any APIError with the same kind, so errors.Is(err, ErrInvalidToken)
// works on decoded responses.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Kind == e.Kind
}

// WriteError writes e as a JSON error response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Kind, e.Message)
}

// WithMessage returns a copy of e with a different message.
func (e *APIError) WithMessage(msg string) *APIError {
	c := *e
	c.Message = msg
	return &c
}

var (
	ErrValidation = &APIError{
		StatusCode: http.StatusBadRequest,
		Kind:       KindValidation,
		Message:    "The request is malformed.",
	}

	// ErrInvalidCredentials covers unknown email, wrong password and inactive
	// account alike.
	ErrInvalidCredentials = &APIError{
		StatusCode: http.StatusUnauthorized,
		Kind:       KindInvalidCredentials,
		Message:    "Invalid email or password.",
	}

	ErrInvalidToken = &APIError{
		StatusCode: http.StatusUnauthorized,
		Kind:       KindInvalidToken,
		Message:    "The token is invalid or expired.",
	}

	ErrInactiveUser = &APIError{
		StatusCode: http.StatusUnauthorized,
		Kind:       KindInactiveUser,
		Message:    "The user account is inactive.",
	}

	ErrMissingCredential = &APIError{
		StatusCode: http.StatusUnauthorized,
		Kind:       KindMissingCredential,
		Message:    "Missing bearer token.",
	}

	ErrRateLimited = &APIError{
		StatusCode: http.StatusTooManyRequests,
		Kind:       KindRateLimited,
		Message:    "Too many requests. Please try again later.",
	}

	// ErrInternal never carries detail; the cause is only logged server side.
	ErrInternal = &APIError{
		StatusCode: http.StatusInternalServerError,
		Kind:       KindInternal,
		Message:    "Internal server error.",
	}
)

// parseErrorResponse turns a non-2xx response body into an *APIError. Bodies
// that are not in the service's error shape still yield an APIError keyed by
// status.
func parseErrorResponse(status int, body []byte) error {
	var e APIError
	if err := json.Unmarshal(body, &e); err == nil && e.Kind != "" {
		e.StatusCode = status
		return &e
	}

	kind := KindInternal
	if status < http.StatusInternalServerError {
		kind = KindValidation
	}
	return &APIError{
		StatusCode: status,
		Kind:       kind,
		Message:    fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}
