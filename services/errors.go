package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation            ErrorType = "validation"
	ErrorTypeEmailNotConfirmed     ErrorType = "email_not_confirmed"
	ErrorTypeInvalidCredentials    ErrorType = "invalid_credentials"
	ErrorTypeDuplicateRegistration ErrorType = "duplicate_registration"
	ErrorTypeRateLimit             ErrorType = "rate_limit"
	ErrorTypeBusy                  ErrorType = "busy"
	ErrorTypeUnauthorized          ErrorType = "unauthorized"
	ErrorTypeNotFound              ErrorType = "not_found"
	ErrorTypeExternal              ErrorType = "external"
	ErrorTypeInternal              ErrorType = "internal"
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

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
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

// NewValidationError creates a validation error bound to a form field
func NewValidationError(field, message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil).WithDetail("field", field)
}

// Sentinels for errors.Is matching. Never mutate them; build new errors
// with NewDomainError instead.
var (
	ErrValidation            = &DomainError{Type: ErrorTypeValidation}
	ErrEmailNotConfirmed     = &DomainError{Type: ErrorTypeEmailNotConfirmed}
	ErrInvalidCredentials    = &DomainError{Type: ErrorTypeInvalidCredentials}
	ErrDuplicateRegistration = &DomainError{Type: ErrorTypeDuplicateRegistration}
	ErrRateLimit             = &DomainError{Type: ErrorTypeRateLimit}
	ErrBusy                  = &DomainError{Type: ErrorTypeBusy}
	ErrUnauthorized          = &DomainError{Type: ErrorTypeUnauthorized}
	ErrNotFound              = &DomainError{Type: ErrorTypeNotFound}
	ErrExternal              = &DomainError{Type: ErrorTypeExternal}
	ErrInternal              = &DomainError{Type: ErrorTypeInternal}
)

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

// GetErrorMessage returns the user-facing message of a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsExternalError checks if an error is an external service error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// WrapExternal wraps an error as an external service error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
