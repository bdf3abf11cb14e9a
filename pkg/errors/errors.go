// Package errors defines the API error taxonomy shared by every handler.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes returned in API error bodies
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "RESOURCE_NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeBadRequest      = "BAD_REQUEST"
	CodeTimeout         = "TIMEOUT"
)

// AppError is an error with an API code and HTTP status
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds one detail entry
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap records the underlying cause
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates an AppError
func NewAppError(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields carries one message per offending field
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	e := ErrValidation(message)
	e.Details = fields
	return e
}

func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, resource+" not found", http.StatusNotFound)
}

func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrInternal hides the cause from the caller; an empty message gets a generic one
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, operation+" timed out", http.StatusGatewayTimeout)
}

// AsAppError finds an AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// messageRules classify plain errors by their text, first match wins
var messageRules = []struct {
	keywords []string
	build    func(err error) *AppError
}{
	{[]string{"not found"}, func(error) *AppError { return ErrNotFound("resource") }},
	{[]string{"already exists", "not stopped", "not the current"}, func(err error) *AppError { return ErrConflict(err.Error()) }},
	{[]string{"invalid", "required", "out of range"}, func(err error) *AppError { return ErrValidation(err.Error()) }},
	{[]string{"timeout", "deadline exceeded"}, func(error) *AppError { return ErrTimeout("operation") }},
}

// MapDomainError returns the AppError in err's chain, or classifies err by
// its message. Anything unrecognised is an internal error.
func MapDomainError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.build(err).Wrap(err)
			}
		}
	}
	return ErrInternal("").Wrap(err)
}
