package core

import (
	"fmt"
)

// Error represents a structured error with category and details
type Error struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: not_found, invalid_name, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
// This lets errors.Is(err, core.ErrNotFound) match copies made by WithCause and friends.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *Error) WithCause(cause error) *Error {
	return &Error{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(msg string) *Error {
	return &Error{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with formatting.
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Validation errors
	ErrInvalidConfig = &Error{
		Category: ErrCategoryValidation,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrInvalidName = &Error{
		Category: ErrCategoryValidation,
		Code:     "invalid_name",
		Message:  "invalid screenshot name",
	}

	// IO errors
	ErrIO = &Error{
		Category: ErrCategoryIO,
		Code:     "io",
		Message:  "file system operation failed",
	}
	ErrNotFound = &Error{
		Category: ErrCategoryIO,
		Code:     "not_found",
		Message:  "image not found",
	}

	// Image data errors
	ErrInvalidImageData = &Error{
		Category: ErrCategoryImageData,
		Code:     "invalid_image_data",
		Message:  "image data must be either a byte buffer or a readable stream",
	}

	// Comparison errors
	ErrComparison = &Error{
		Category: ErrCategoryComparison,
		Code:     "comparison_failed",
		Message:  "could not compare images",
	}

	// Capture errors
	ErrNoCapturer = &Error{
		Category: ErrCategoryCapture,
		Code:     "no_capturer",
		Message:  "no capture adapter configured",
	}
	ErrCapture = &Error{
		Category: ErrCategoryCapture,
		Code:     "capture_failed",
		Message:  "could not capture element screenshot",
	}

	// Report errors
	ErrNoActiveSpec = &Error{
		Category: ErrCategoryReport,
		Code:     "no_active_spec",
		Message:  "screenshot taken outside of a running spec",
	}
)

// NewError creates a new Error with the given parameters
func NewError(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
