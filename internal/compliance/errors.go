package compliance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when caller input is missing or malformed.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add records another invalid field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one field error and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError is returned when a referenced record does not exist in the
// caller's company.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// AlreadyCompletedError is returned when completing a request that already
// has a completion, including the loser of a concurrent completion race.
type AlreadyCompletedError struct {
	RequestID int64
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("acknowledgement request %d is already completed", e.RequestID)
}

// InvalidTransitionError is returned when a version status change would move backwards.
type InvalidTransitionError struct {
	VersionID int64
	From      models.VersionStatus
	To        models.VersionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("policy version %d cannot move from %s to %s", e.VersionID, e.From, e.To)
}

// ConflictError is returned when a write collides with existing state, such as
// a duplicate employee email.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// StoreError wraps an unexpected persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err as a StoreError unless it already belongs to the taxonomy.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		nf *NotFoundError
		ac *AlreadyCompletedError
		it *InvalidTransitionError
		ce *ConflictError
		se *StoreError
	)
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ac) ||
		errors.As(err, &it) || errors.As(err, &ce) || errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
