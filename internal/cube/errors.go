package cube

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates an invalid catalog, an exceeded subset
	// ceiling, or a catalog/store mismatch. Fatal at startup.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeNotFound indicates no artifact exists under a key.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodePartialWrite indicates a write was interrupted before commit.
	// The previously committed artifact remains visible.
	ErrCodePartialWrite ErrorCode = "PARTIAL_WRITE"

	// ErrCodeDataQuality marks non-fatal record drops. Counted, never raised.
	ErrCodeDataQuality ErrorCode = "DATA_QUALITY"
)

// Error is the structured error type shared by all cubist packages.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Key is the canonical subset key involved, if any.
	Key string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause (optional).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("%s (key=%s)", msg, e.Key)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigError creates a configuration error.
func NewConfigError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError creates a not-found error for a subset key.
func NewNotFoundError(key string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: "no artifact has been materialized for this subset",
		Key:     key,
	}
}

// NewPartialWriteError wraps the cause of an interrupted write.
func NewPartialWriteError(key string, err error) *Error {
	return &Error{
		Code:    ErrCodePartialWrite,
		Message: "write interrupted before commit; previous artifact retained",
		Key:     key,
		Err:     err,
	}
}

// hasCode walks the whole error chain, so a configuration error that
// wraps a not-found error satisfies both IsConfigError and IsNotFound.
func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsConfigError returns true if err is or wraps a configuration error.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsNotFound returns true if err is or wraps a not-found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsPartialWrite returns true if err is or wraps a partial-write error.
func IsPartialWrite(err error) bool {
	return hasCode(err, ErrCodePartialWrite)
}

// CodeOf returns the code of the outermost *Error in the chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
