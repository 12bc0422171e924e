// Package jobserrors provides structured error handling for the cleaning job with
// error categorization, key-value context and stack traces.
//
// # Overview
//
// The job distinguishes two classes of failure:
//   - Structural errors (ErrorTypeSchema, ErrorTypeInvalidArgument, ErrorTypeConfig,
//     ErrorTypeNotFound, ErrorTypeSourceUnavailable) abort the whole job before or
//     during the join.
//   - Per-record errors (ErrorTypeSinkUnavailable, ErrorTypeSerialization) are recorded
//     in an export report and never stop the remaining records.
//
// # Basic Usage
//
//	err := jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "shard count must be positive").
//	    WithDetail("shard_count", n)
//
//	if err := sink.Put(ctx, key, body, attrs); err != nil {
//	    return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "put failed").
//	        WithDetail("key", key)
//	}
//
// # Thread Safety
//
// Error instances are not safe for concurrent modification. Add details
// before sharing an error across goroutines.
package jobserrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of an error and drives the propagation policy.
type ErrorType string

const (
	// ErrorTypeInternal represents unexpected internal failures
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeSchema represents a malformed raw record or collection
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeInvalidArgument represents bad arguments or configuration values
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	// ErrorTypeConfig represents configuration that cannot be loaded or applied
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeNotFound represents a missing source object
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeSourceUnavailable represents a failed read of a source object
	ErrorTypeSourceUnavailable ErrorType = "source_unavailable"
	// ErrorTypeSinkUnavailable represents a failed write to the object sink
	ErrorTypeSinkUnavailable ErrorType = "sink_unavailable"
	// ErrorTypeSerialization represents a record that could not be encoded
	ErrorTypeSerialization ErrorType = "serialization"
	// ErrorTypeCancelled represents work abandoned because the job was cancelled
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error is a structured error carrying a type, a message, an optional cause,
// free-form details and the stack at creation time.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame of a captured call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error so errors.Is and errors.As see through it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with a type and message. If err is already a
// structured Error its stack is preserved. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether the outermost structured error in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// TypeOf returns the type of the outermost structured error in err's chain,
// or ErrorTypeInternal when err carries no type.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// IsRetryable reports whether a failed operation may succeed when repeated.
// Source and sink outages are retryable; everything else is not.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeSinkUnavailable, ErrorTypeSourceUnavailable:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err must abort the job rather than be recorded per record.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeSchema, ErrorTypeInvalidArgument, ErrorTypeConfig, ErrorTypeNotFound,
		ErrorTypeSourceUnavailable, ErrorTypeInternal:
		return true
	default:
		return false
	}
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
