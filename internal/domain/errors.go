package domain

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrJobNotFound       = errors.New("production job not found")
	ErrInvalidStageIndex = errors.New("invalid stage index")
	ErrStageNotCurrent   = errors.New("stage is not the current stage")
	ErrStageNotStopped   = errors.New("current stage is not stopped")
	ErrStageNotFound     = errors.New("stage not found")
	ErrValidation        = errors.New("validation failed")
	ErrCatalogNotFound   = errors.New("catalog entry not found")
)

// ValidationError names the offending field. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a field validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
