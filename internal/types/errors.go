package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for node4j errors.
type ErrorCode string

// Core error codes
const (
	// ErrCodeCompile marks statements rejected before reaching the server:
	// unknown fields or relationships, operator/type mismatches.
	ErrCodeCompile ErrorCode = "COMPILE_FAILED"
	// ErrCodeValidation marks values rejected by the schema provider.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
	// ErrCodeConnectivity marks an unreachable or timed out execution service.
	ErrCodeConnectivity ErrorCode = "CONNECTIVITY_FAILED"
	// ErrCodeConstraintViolation marks a uniqueness or constraint breach reported by the server.
	ErrCodeConstraintViolation ErrorCode = "CONSTRAINT_VIOLATION"
	// ErrCodeConcurrencyConflict marks a write conflict or deadlock reported by the server.
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	// ErrCodeStatement marks any other failure reported by the server for a statement.
	ErrCodeStatement ErrorCode = "STATEMENT_FAILED"
	// ErrCodeTransaction marks begin/commit/rollback failures and misuse of a closed transaction.
	ErrCodeTransaction ErrorCode = "TRANSACTION_FAILED"
	// ErrCodeNotFound marks lookups that matched nothing.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidArgument marks API misuse such as an unsaved instance or an empty filter.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeHook marks a lifecycle hook that returned an error.
	ErrCodeHook ErrorCode = "HOOK_FAILED"
	// ErrCodeRegistry marks invalid entity kind declarations.
	ErrCodeRegistry ErrorCode = "REGISTRY_INVALID"
)

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Error represents a structured error with error code, message, and optional cause.
// Query carries the statement text that failed, when one was sent.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
	Query     string
	Context   map[string]any
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithQuery records the statement that caused the error.
func (e *Error) WithQuery(query string) *Error {
	e.Query = query
	return e
}

// WithContext adds a debugging key/value to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewError creates a new non-retryable Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable Error. node4j never retries on its
// own; the flag is a hint for callers.
func NewRetryableError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable Error that wraps an existing error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewCompileError creates a compile failure.
func NewCompileError(format string, args ...any) *Error {
	return NewError(ErrCodeCompile, fmt.Sprintf(format, args...))
}

// NewValidationError creates a validation failure for a single field.
func NewValidationError(kind, field string, cause error) *Error {
	return WrapError(ErrCodeValidation, fmt.Sprintf("invalid value for %s.%s", kind, field), cause).
		WithContext("kind", kind).
		WithContext("field", field)
}

// NewNotFoundError creates a not-found error for a kind.
func NewNotFoundError(kind string) *Error {
	return NewError(ErrCodeNotFound, fmt.Sprintf("no %s matched the filter", kind)).
		WithContext("kind", kind)
}

// HasCode reports whether any Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &Error{Code: code})
}

// IsCompileError reports whether err was raised before any statement was sent.
func IsCompileError(err error) bool { return HasCode(err, ErrCodeCompile) }

// IsValidationError reports whether err came from the schema provider.
func IsValidationError(err error) bool { return HasCode(err, ErrCodeValidation) }

// IsConnectivityError reports whether the execution service was unreachable.
func IsConnectivityError(err error) bool { return HasCode(err, ErrCodeConnectivity) }

// IsConstraintViolation reports whether the server rejected a write on a constraint.
func IsConstraintViolation(err error) bool { return HasCode(err, ErrCodeConstraintViolation) }

// IsConcurrencyConflict reports whether the server reported a write conflict.
func IsConcurrencyConflict(err error) bool { return HasCode(err, ErrCodeConcurrencyConflict) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }
