package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeRouting       ErrorType = "routing"
	ErrorTypeExternal      ErrorType = "external"
	ErrorTypeInternal      ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Registry errors
	ErrDuplicateBackend = NewDomainError(ErrorTypeConflict, "backend id already registered", nil)
	ErrUnknownBackend   = NewDomainError(ErrorTypeNotFound, "backend not registered", nil)
	ErrEmptyRegistry    = NewDomainError(ErrorTypeConfiguration, "no backends registered", nil)

	// Routing errors (recoverable at the router via fallback-to-default)
	ErrAmbiguousResponse  = NewDomainError(ErrorTypeRouting, "classifier response did not name a registered backend", nil)
	ErrBackendUnavailable = NewDomainError(ErrorTypeExternal, "backend collaborator unavailable", nil)

	// Validation errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyText    = NewDomainError(ErrorTypeValidation, "request text cannot be empty", nil)

	// Internal errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// BackendUnavailableError wraps a collaborator failure so that
// errors.Is(err, ErrBackendUnavailable) holds while keeping the cause.
func BackendUnavailableError(err error) error {
	return NewDomainError(ErrorTypeExternal, ErrBackendUnavailable.Message, err)
}

// AmbiguousResponseError wraps an unparseable classifier response so that
// errors.Is(err, ErrAmbiguousResponse) holds while keeping the raw token.
func AmbiguousResponseError(token string) error {
	e := NewDomainError(ErrorTypeRouting, ErrAmbiguousResponse.Message, nil)
	return e.WithDetail("token", token)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return GetErrorType(err) == ErrorTypeConfiguration
}

// IsRoutingError checks if an error is a recoverable routing error
func IsRoutingError(err error) bool {
	return GetErrorType(err) == ErrorTypeRouting
}

// IsExternalError checks if an error is an external collaborator error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsRecoverableRoutingError reports whether the router may degrade to the
// default backend instead of failing the request.
func IsRecoverableRoutingError(err error) bool {
	return IsRoutingError(err) || IsExternalError(err)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external collaborator error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
