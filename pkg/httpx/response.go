package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error kinds shared by every JSON error body.
const (
	KindValidation         = "ValidationError"
	KindInvalidCredentials = "InvalidCredentials"
	KindInvalidToken       = "InvalidToken"
	KindInactiveUser       = "InactiveUser"
	KindMissingCredential  = "MissingCredential"
	KindRateLimited        = "RateLimited"
	KindInternal           = "InternalError"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 16

// WriteJSON writes a JSON response with the given status code.
// Responses are never cacheable.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorBody with the given status.
func WriteError(w http.ResponseWriter, code int, kind, message string) {
	WriteJSON(w, code, ErrorBody{Error: kind, Message: message})
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// DecodeJSON reads a single JSON object from r's body into dst. Unknown
// fields are ignored; trailing data and oversized bodies are errors.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("request body is not valid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
