// Package llmerrors provides structured error classification for completion service interactions.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrorType represents the failure categories a turn can end with.
type ErrorType int8

const (
	// ErrorTypeTimeout represents a request that exceeded its upper bound.
	ErrorTypeTimeout ErrorType = iota
	// ErrorTypeConnectionRefused represents an unreachable completion service.
	ErrorTypeConnectionRefused
	// ErrorTypeBadStatus represents a non-2xx response.
	ErrorTypeBadStatus
	// ErrorTypeEmptyBody represents a successful response without a usable stream body.
	ErrorTypeEmptyBody
	// ErrorTypeBadPrompt represents a request that could not be built.
	ErrorTypeBadPrompt
	// ErrorTypeCanceled represents a request aborted by the caller.
	ErrorTypeCanceled
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConnectionRefused:
		return "connection_refused"
	case ErrorTypeBadStatus:
		return "bad_status"
	case ErrorTypeEmptyBody:
		return "empty_body"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeCanceled:
		return "canceled"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified completion error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a new classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// Classify maps a transport-level error onto an ErrorType. Already classified
// errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorWithCause(ErrorTypeTimeout, err, "request timeout")
	case errors.Is(err, context.Canceled):
		return NewErrorWithCause(ErrorTypeCanceled, err, "request canceled")
	case errors.Is(err, syscall.ECONNREFUSED):
		return NewErrorWithCause(ErrorTypeConnectionRefused, err, "completion service not reachable")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewErrorWithCause(ErrorTypeTimeout, err, "request timeout")
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "connection refused") {
		return NewErrorWithCause(ErrorTypeConnectionRefused, err, "completion service not reachable")
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return NewErrorWithCause(ErrorTypeConnectionRefused, err, "completion service not reachable")
	case strings.Contains(errStr, "timeout"):
		return NewErrorWithCause(ErrorTypeTimeout, err, "request timeout")
	default:
		return NewErrorWithCause(ErrorTypeUnknown, err, errStr)
	}
}

// UserMessage returns the short human-readable cause shown inline in the
// transcript when a turn fails.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var llmErr *Error
	if !errors.As(err, &llmErr) {
		return err.Error()
	}

	switch llmErr.Type {
	case ErrorTypeTimeout:
		return "Ollama request timed out."
	case ErrorTypeConnectionRefused:
		return "Ollama is not running (Connection Refused)."
	case ErrorTypeBadStatus:
		if llmErr.Message != "" {
			return fmt.Sprintf("Failed to fetch from Ollama: %s", llmErr.Message)
		}
		return fmt.Sprintf("Failed to fetch from Ollama: status %d", llmErr.StatusCode)
	case ErrorTypeEmptyBody:
		return "Ollama returned no response body"
	case ErrorTypeCanceled:
		return "요청이 취소되었습니다."
	case ErrorTypeBadPrompt:
		return fmt.Sprintf("Invalid request: %s", llmErr.Message)
	default:
		if llmErr.Message != "" {
			return fmt.Sprintf("Internal Server Error: %s", llmErr.Message)
		}
		return "응답 실패"
	}
}
