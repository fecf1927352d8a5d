/*
errors.go - Centralized error types for the employment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is against the sentinels; the
  structured types carry a machine-readable code for the HTTP layer.

ERROR CATEGORIES:
  1. Conflict - The request contradicts the employment history
                (assignment before hire, inside an unemployment gap)
  2. Not found - A referenced employee, policy or event does not exist
  3. Inconsistent state - Stored data violates a series invariant
                (overlapping intervals, two current intervals)

USAGE:
    if errors.Is(err, generic.ErrConflict) {
        // 409
    }

SEE ALSO:
  - api/handlers.go: Maps these errors to HTTP status codes
  - interval.go: Raises InconsistentStateError during series validation
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConflict is returned when an operation contradicts the employee's
	// lifecycle history.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInconsistentState is returned when stored intervals break a series
	// invariant. Never expected in normal operation.
	ErrInconsistentState = errors.New("inconsistent state")

	// ErrInvalidInput is returned for malformed operation arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// Conflict codes
const (
	CodeBeforeHire = "conflict.before_hire"
	CodeUnemployed = "conflict.unemployed"
	CodeEmployed   = "conflict.employed"
	CodeOverlap    = "conflict.overlap"
	CodeHireInUse  = "conflict.hire_in_use"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError reports an operation rejected by the lifecycle rules.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Code + ": " + e.Message }
func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // employee, policy, category, event...
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Code returns "not_found.<kind>".
func (e *NotFoundError) Code() string { return "not_found." + e.Kind }

// InconsistentStateError reports a violated series invariant.
type InconsistentStateError struct {
	EmployeeID EmployeeID
	Detail     string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent state for employee %s: %s", e.EmployeeID, e.Detail)
}
func (e *InconsistentStateError) Unwrap() error { return ErrInconsistentState }

// ValidationError reports a malformed argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFound is a shorthand constructor.
func NotFound[T ~string](kind string, id T) error {
	return &NotFoundError{Kind: kind, ID: string(id)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInconsistent returns true if stored state violated a series invariant.
func IsInconsistent(err error) bool {
	return errors.Is(err, ErrInconsistentState)
}

// ErrorCode extracts the machine-readable code carried by err.
func ErrorCode(err error) string {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Code
	}
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return notFound.Code()
	}
	if errors.Is(err, ErrInconsistentState) {
		return "inconsistent_state"
	}
	if errors.Is(err, ErrInvalidInput) {
		return "invalid_input"
	}
	return "internal"
}
