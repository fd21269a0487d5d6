package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorkoutNotFound is returned when a workout cannot be located.
	ErrWorkoutNotFound = errors.New("workout not found")
	// ErrWorkoutAccessDenied is returned when a workout belongs to another user.
	ErrWorkoutAccessDenied = errors.New("workout belongs to another user")
	// ErrUserNotFound is returned when no user row exists for the principal.
	ErrUserNotFound = errors.New("user not found")
	// ErrCatalogUnavailable indicates the exercise catalog store is unreachable.
	ErrCatalogUnavailable = errors.New("exercise catalog unavailable")
	// ErrPersistenceFailure indicates the nested write failed and the workout
	// header was rolled back by the compensating delete.
	ErrPersistenceFailure = errors.New("workout persistence failure")
	// ErrCompensationFailed indicates the nested write failed AND the
	// compensating delete of the workout header also failed. This is the one
	// path that can leave an orphaned header behind and must be reconciled by
	// an operator.
	ErrCompensationFailed = errors.New("workout header compensation failed")
)

// FieldViolation is a single validation failure tied to a payload field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found in a workout submission so
// the caller gets the complete list rather than the first failure.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "workout validation failed: " + strings.Join(parts, "; ")
}
