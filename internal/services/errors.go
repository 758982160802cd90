package services

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist or is not owned by
// the caller. The two cases are deliberately indistinguishable so that one
// user cannot probe for the existence of another user's records.
var ErrNotFound = errors.New("record not found")

// ErrEmailTaken is returned when an account with the given email exists.
var ErrEmailTaken = errors.New("email already registered")

// ValidationError describes a rejected field in an incoming payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
