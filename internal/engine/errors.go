package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while dispatching.
//
// Runtime errors include:
//   - Invariant violation: admission or lifecycle bookkeeping is inconsistent
//     (raised as a panic value, never returned)
//   - Quota exceeded: RunUntilIdle did not quiesce within its step budget
//   - Re-entrant dispatch: RunUntilIdle called from inside a Task
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Component names the part of the engine that detected the error
	// (e.g. "goals", "topology").
	Component string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvariant indicates a programming error that must abort.
	ErrCodeInvariant RuntimeErrorCode = "INVARIANT_VIOLATION"

	// ErrCodeQuotaExceeded indicates the loop exceeded its step budget.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeReentrant indicates a drain was requested from inside a Task.
	ErrCodeReentrant RuntimeErrorCode = "REENTRANT_DISPATCH"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Component)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariantError reports whether err (or a recovered panic value) is an
// invariant violation. Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvariant
	}
	return false
}

// IsQuotaError reports whether err is a quota error, either a RuntimeError
// with ErrCodeQuotaExceeded or a StepsExceededError.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// NewInvariantError creates the panic value for an invariant violation.
func NewInvariantError(component, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeInvariant,
		Message:   fmt.Sprintf(format, args...),
		Component: component,
	}
}

// Invariant panics with an invariant violation when ok is false.
func Invariant(ok bool, component, format string, args ...any) {
	if !ok {
		panic(NewInvariantError(component, format, args...))
	}
}
