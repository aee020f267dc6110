package synth

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies a synthesis failure for callers and for HTTP mapping.
type Code string

const (
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeVoiceNotFound Code = "VOICE_NOT_FOUND"
	CodeAuth          Code = "AUTH_ERROR"
	CodeForbidden     Code = "FORBIDDEN"
	CodeRateLimited   Code = "UPSTREAM_RATE_LIMIT"
	CodeUpstream      Code = "UPSTREAM_ERROR"
	CodeTimeout       Code = "TIMEOUT_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Error is a classified synthesis failure. Retryable marks failures the
// client may attempt again; RetryAfter carries the provider's delay hint
// when one was supplied.
type Error struct {
	Code       Code
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a classified error with the code's default retryability.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Retryable: code == CodeRateLimited || code == CodeUpstream || code == CodeTimeout,
	}
}

// AsError extracts a classified error from err's chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf returns err's classification, or CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	if se, ok := AsError(err); ok {
		return se.Code
	}
	return CodeInternal
}

// IsRetryable reports whether err is a classified retryable failure.
func IsRetryable(err error) bool {
	se, ok := AsError(err)
	return ok && se.Retryable
}
