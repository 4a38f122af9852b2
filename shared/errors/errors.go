package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Session lifecycle errors
	ErrorTypeConnection ErrorType = "CONNECTION"
	ErrorTypeSession    ErrorType = "SESSION"

	// Contract errors
	ErrorTypeQuery    ErrorType = "QUERY"
	ErrorTypeWrite    ErrorType = "WRITE"
	ErrorTypeNotFound ErrorType = "NOT_FOUND"
	ErrorTypeTimeout  ErrorType = "TIMEOUT"

	// API surface errors
	ErrorTypeInvalidInput ErrorType = "INVALID_INPUT"
	ErrorTypeRateLimited  ErrorType = "RATE_LIMITED"
	ErrorTypeInternal     ErrorType = "INTERNAL"
)

// Error represents a structured error with context.
// Values are treated as immutable: WithCause and WithDetails return copies,
// so package-level sentinels can be shared safely.
type Error struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Stack      []string               `json:"-"`
	Cause      error                  `json:"-"`
	StatusCode int                    `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by type, and by code when the target has one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func (e *Error) clone() *Error {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// WithDetails returns a copy of the error with an extra detail
func (e *Error) WithDetails(key string, value interface{}) *Error {
	c := e.clone()
	if c.Details == nil {
		c.Details = make(map[string]interface{})
	}
	c.Details[key] = value
	return c
}

// WithCause returns a copy of the error wrapping cause
func (e *Error) WithCause(cause error) *Error {
	c := e.clone()
	c.Cause = cause
	c.Stack = captureStack()
	return c
}

// captureStack captures the current stack trace
func captureStack() []string {
	var stack []string
	for i := 2; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn != nil && !strings.Contains(fn.Name(), "runtime.") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}
	return stack
}

// New creates a new error
func New(errorType ErrorType, code, message string) *Error {
	e := &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}

	switch errorType {
	case ErrorTypeNotFound:
		e.StatusCode = http.StatusNotFound
	case ErrorTypeInvalidInput:
		e.StatusCode = http.StatusBadRequest
	case ErrorTypeSession:
		e.StatusCode = http.StatusUnauthorized
	case ErrorTypeRateLimited:
		e.StatusCode = http.StatusTooManyRequests
	case ErrorTypeTimeout:
		e.StatusCode = http.StatusGatewayTimeout
	case ErrorTypeConnection, ErrorTypeQuery:
		e.StatusCode = http.StatusBadGateway
	case ErrorTypeWrite:
		e.StatusCode = http.StatusUnprocessableEntity
	default:
		e.StatusCode = http.StatusInternalServerError
	}

	return e
}

// InvalidInput reports a rejected request field
func InvalidInput(field string, reason string) *Error {
	return New(ErrorTypeInvalidInput, "INVALID_INPUT",
		fmt.Sprintf("Invalid input for field '%s': %s", field, reason)).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// Internal wraps failures that have no domain classification
func Internal(message string) *Error {
	return New(ErrorTypeInternal, "INTERNAL_ERROR", message)
}

// From returns err as *Error, wrapping foreign errors as INTERNAL.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Internal(err.Error()).WithCause(err)
}

// IsType checks if an error chain contains an *Error of a specific type
func IsType(err error, errorType ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}

// GetCode returns the error code if it's our error type
func GetCode(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return "UNKNOWN"
}
