package domain

import (
	"errors"
	"fmt"
	"time"
)

// PGXError represents a standardized error response
type PGXError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *PGXError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput     = "INVALID_INPUT"
	ErrReferenceError   = "REFERENCE_ERROR"
	ErrDatabaseError    = "DATABASE_ERROR"
	ErrExternalAPI      = "EXTERNAL_API_ERROR"
	ErrExtraction       = "EXTRACTION_ERROR"
	ErrInternalServer   = "INTERNAL_SERVER_ERROR"
	ErrValidation       = "VALIDATION_ERROR"
	ErrResourceNotFound = "NOT_FOUND"
)

// Sentinel errors for wrapping
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidReference = errors.New("invalid reference table")
	ErrStoreDisabled    = errors.New("store not enabled")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewPGXError creates a new PGXError with timestamp
func NewPGXError(code, message, details, requestID string) *PGXError {
	return &PGXError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
