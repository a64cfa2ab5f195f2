// Package errors provides structured error types for Gavel.
// It implements error classification, wrapping, and recovery detection.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindConfig indicates a configuration error.
	KindConfig
	// KindSchema indicates a request schema validation error.
	KindSchema
	// KindValidation indicates a semantic validation error.
	KindValidation
	// KindPolicy indicates a policy rule violation.
	KindPolicy
	// KindPermission indicates a permission or gate error.
	KindPermission
	// KindStore indicates an event store error.
	KindStore
	// KindAdapter indicates an execution adapter error.
	KindAdapter
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindConflict indicates a conflict error.
	KindConflict
	// KindTimeout indicates a timeout error.
	KindTimeout
	// KindInternal indicates an internal error.
	KindInternal
)

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindSchema:
		return "schema"
	case KindValidation:
		return "validation"
	case KindPolicy:
		return "policy"
	case KindPermission:
		return "permission"
	case KindStore:
		return "store"
	case KindAdapter:
		return "adapter"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the standard error type for Gavel.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message.
	Message string
	// Err is the underlying error.
	Err error
	// Recoverable indicates if the error can be recovered from by the caller.
	Recoverable bool
	// Details contains additional context about the error.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// For *Error types, it checks if both the Kind and Op match.
// For sentinel errors (errors without Op), only Kind is compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// WithDetail adds a single detail to the error and returns the modified error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// Newf creates a new Error with the given kind and formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, kind Kind, op string, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// GetKind returns the Kind of an error.
// If the error is not an *Error, it returns KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// IsRecoverable returns true if the error is recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// Common error constructors for frequently used error types.

// Config creates a configuration error.
func Config(op, message string) *Error {
	return &Error{
		Kind:    KindConfig,
		Op:      op,
		Message: message,
	}
}

// ConfigWrap wraps an error as a configuration error.
func ConfigWrap(err error, op, message string) *Error {
	return Wrap(err, KindConfig, op, message)
}

// Schema creates a request schema error. Schema errors are recoverable:
// the caller can resubmit a corrected request.
func Schema(op, message string) *Error {
	return &Error{
		Kind:        KindSchema,
		Op:          op,
		Message:     message,
		Recoverable: true,
	}
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{
		Kind:        KindValidation,
		Op:          op,
		Message:     message,
		Recoverable: true,
	}
}

// Policy creates a policy violation error.
func Policy(op, message string) *Error {
	return &Error{
		Kind:        KindPolicy,
		Op:          op,
		Message:     message,
		Recoverable: true,
	}
}

// Permission creates a permission/gate error.
func Permission(op, message string) *Error {
	return &Error{
		Kind:    KindPermission,
		Op:      op,
		Message: message,
	}
}

// Store creates an event store error.
func Store(op, message string) *Error {
	return &Error{
		Kind:    KindStore,
		Op:      op,
		Message: message,
	}
}

// StoreWrap wraps an error as an event store error.
func StoreWrap(err error, op, message string) *Error {
	return Wrap(err, KindStore, op, message)
}

// Adapter creates an execution adapter error.
func Adapter(op, message string) *Error {
	return &Error{
		Kind:    KindAdapter,
		Op:      op,
		Message: message,
	}
}

// AdapterWrap wraps an error as an execution adapter error.
func AdapterWrap(err error, op, message string) *Error {
	return Wrap(err, KindAdapter, op, message)
}

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Op:      op,
		Message: message,
	}
}

// Timeout creates a timeout error.
func Timeout(op, message string) *Error {
	return &Error{
		Kind:        KindTimeout,
		Op:          op,
		Message:     message,
		Recoverable: true,
	}
}

// Internal creates an internal error.
func Internal(op, message string) *Error {
	return &Error{
		Kind:    KindInternal,
		Op:      op,
		Message: message,
	}
}
