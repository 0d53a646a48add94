package types

import (
	"errors"
	"fmt"
	"strings"
)

// Platform error codes
const (
	ErrCodeInvalidURL    = "INVALID_URL"
	ErrCodeVideoNotFound = "VIDEO_NOT_FOUND"
	ErrCodeAPIError      = "API_ERROR"
)

// Transcript error codes
const (
	ErrCodeNoTranscript     = "NO_TRANSCRIPT"
	ErrCodeAllSourcesFailed = "ALL_SOURCES_FAILED"
)

// Database error codes
const (
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeQueryFailed = "QUERY_FAILED"
	ErrCodeConflict    = "CONFLICT"
)

// ErrNotFound matches any DatabaseError raised for a missing record
var ErrNotFound = errors.New("record not found")

// PlatformError is raised by metadata clients
type PlatformError struct {
	Platform Platform
	Code     string
	Message  string
	Context  map[string]any
	Err      error
}

func (e *PlatformError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Platform, strings.ToLower(e.Code), e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewPlatformError builds a PlatformError
func NewPlatformError(platform Platform, code, message string, err error) *PlatformError {
	return &PlatformError{Platform: platform, Code: code, Message: message, Err: err}
}

// TranscriptError is raised when no transcript could be produced for a URL
type TranscriptError struct {
	Code   string
	URL    string
	Causes []error
}

func (e *TranscriptError) Error() string {
	msg := fmt.Sprintf("transcript %s for %s", strings.ToLower(e.Code), e.URL)
	if len(e.Causes) == 0 {
		return msg
	}
	parts := make([]string, 0, len(e.Causes))
	for _, cause := range e.Causes {
		parts = append(parts, cause.Error())
	}
	return msg + ": " + strings.Join(parts, "; ")
}

func (e *TranscriptError) Unwrap() []error {
	return e.Causes
}

// ValidationError lists every problem found in a payload or request
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, ", ")
}

// DatabaseError wraps a persistence failure with the operation that caused it
type DatabaseError struct {
	Code      string
	Operation string
	Context   map[string]any
	Err       error
}

func (e *DatabaseError) Error() string {
	msg := fmt.Sprintf("database %s failed (%s)", e.Operation, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match NOT_FOUND database errors
func (e *DatabaseError) Is(target error) bool {
	return target == ErrNotFound && e.Code == ErrCodeNotFound
}
