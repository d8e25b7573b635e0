package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. Services wrap these
// with context; callers test with errors.Is.

var (
	// Goal errors
	ErrGoalNotFound = errors.New("goal not found")
	ErrGoalInactive = errors.New("goal not active")

	// Chama errors
	ErrChamaNotFound = errors.New("chama not found")
	ErrChamaInactive = errors.New("chama not active")
	ErrChamaFull     = errors.New("chama at member capacity")
	ErrAlreadyMember = errors.New("already a member of this chama")
	ErrNotMember     = errors.New("not an active member of this chama")

	// Scheduler errors
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already scheduled")
	ErrTaskTimeout  = errors.New("task execution timeout")
)

// ValidationError reports malformed or out-of-range input. It carries the
// offending field so the conversational front end can phrase a reply.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for a field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
