package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation error codes.
const (
	CodeTitleEmpty         = "TITLE_EMPTY"
	CodeTitleTooLong       = "TITLE_TOO_LONG"
	CodeDescriptionTooLong = "DESCRIPTION_TOO_LONG"
	CodeNoFields           = "NO_FIELDS"
	CodeInvalidID          = "INVALID_ID"
	CodeInvalid            = "INVALID"
)

// ErrTodoNotFound matches any NotFoundError via errors.Is.
var ErrTodoNotFound = errors.New("todo not found")

// ValidationError represents a domain rule violation on a single field.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// ValidationErrors is a list of field-level validation failures.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

// NotFoundError is returned when an operation targets a todo that does not exist.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("todo with id %s not found", e.ID)
}

// Is reports whether target is ErrTodoNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrTodoNotFound
}
