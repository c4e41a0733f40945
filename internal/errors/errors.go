package errors

import (
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeConfig    ErrorType = "CONFIG"
	ErrTypeData      ErrorType = "DATA"
	ErrTypeNumerical ErrorType = "NUMERICAL"
	ErrTypeMemory    ErrorType = "MEMORY"
	ErrTypeCancelled ErrorType = "CANCELLED"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewDataError creates an error for unusable or insufficient input data
func NewDataError(message string, cause error) *AppError {
	return NewAppError(ErrTypeData, message, cause)
}

// NewNumericalError creates an error for unrecoverable numerical failures
func NewNumericalError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNumerical, message, cause)
}

// MemoryPressureError is raised when memory usage exceeds the hard ceiling even
// after the chunk size has been reduced to its minimum. It is fatal for the run,
// not the process: PartialResult carries whatever stages completed before the
// abort so callers can still consume them.
type MemoryPressureError struct {
	HeapUsedMB    float64
	CeilingMB     float64
	ChunkSize     int
	PartialResult interface{}
}

// Error implements the error interface
func (e *MemoryPressureError) Error() string {
	return fmt.Sprintf("[%s] heap %.1fMB exceeds ceiling %.1fMB at minimum chunk size %d",
		ErrTypeMemory, e.HeapUsedMB, e.CeilingMB, e.ChunkSize)
}
