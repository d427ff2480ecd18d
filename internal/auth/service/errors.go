package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation_error")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrInactiveUser       = errors.New("inactive_user")
)

// ValidationError reports a malformed request field. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
