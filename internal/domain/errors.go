package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConversion ErrorType = "conversion"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeResource   ErrorType = "resource"
	ErrorTypeIntegrity  ErrorType = "integrity"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConversionError(message string, err error) *DomainError {
	return NewError(ErrorTypeConversion, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func ResourceError(message string, err error) *DomainError {
	return NewError(ErrorTypeResource, message, err)
}

func IntegrityError(message string, err error) *DomainError {
	return NewError(ErrorTypeIntegrity, message, err)
}

// IsType reports whether err wraps a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// Reason is the tagged failure carried by a failed Result. Expected failures
// are reported as values, never as errors.
type Reason string

const (
	ReasonInsufficientSpace Reason = "insufficient space"
	ReasonDestinationFull   Reason = "destination volume full"
	ReasonNoPages           Reason = "no pages rasterized"
	ReasonNoImages          Reason = "no images transcoded"
	ReasonOutputBroken      Reason = "output file broken"
	ReasonFilesMissing      Reason = "files missing"
	ReasonWriteError        Reason = "write output error"
	ReasonInvalidSource     Reason = "invalid source"
	ReasonCancelled         Reason = "cancelled"
)

// ErrInsufficientSpace is returned by stages that stop at the low-water mark.
var ErrInsufficientSpace = ResourceError("free space below low-water mark", nil)
