package core

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a domain error
type ErrorType string

const (
	ErrorTypeNotConnected  ErrorType = "not_connected"
	ErrorTypeProvider      ErrorType = "provider"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeStateMismatch ErrorType = "state_mismatch"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeNotFound      ErrorType = "not_found"
)

// DomainError is a structured error carrying its kind and detail
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
	}
}

var (
	ErrNotConnected  = NewDomainError(ErrorTypeNotConnected, "account is not connected", nil)
	ErrProvider      = NewDomainError(ErrorTypeProvider, "mailbox provider error", nil)
	ErrValidation    = NewDomainError(ErrorTypeValidation, "invalid request", nil)
	ErrStorage       = NewDomainError(ErrorTypeStorage, "storage error", nil)
	ErrStateMismatch = NewDomainError(ErrorTypeStateMismatch, "oauth state mismatch", nil)
	ErrUnauthorized  = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrNotFound      = NewDomainError(ErrorTypeNotFound, "not found", nil)
)

// ProviderError wraps a mailbox or identity provider failure. A provider
// reporting a missing resource keeps the not_found type.
func ProviderError(op string, err error) *DomainError {
	if errors.Is(err, ErrNotFound) {
		return NewDomainError(ErrorTypeNotFound, op+" failed", err)
	}
	return NewDomainError(ErrorTypeProvider, op+" failed", err)
}

// StorageError wraps a key-value store failure
func StorageError(op string, err error) *DomainError {
	return NewDomainError(ErrorTypeStorage, op+" failed", err)
}

// ValidationError reports a malformed request
func ValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// ErrorTypeOf returns the type of the outermost DomainError in err's chain
func ErrorTypeOf(err error) (ErrorType, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type, true
	}
	return "", false
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsProviderError checks if an error is a provider error
func IsProviderError(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsStateMismatch checks if an error is a state mismatch error
func IsStateMismatch(err error) bool {
	return errors.Is(err, ErrStateMismatch)
}
