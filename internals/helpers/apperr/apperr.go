// Package apperr is the workflow error taxonomy. Services return these types (wrapped
// with %w where useful) and the HTTP layer maps them onto status codes.
package apperr

import (
	"errors"
	"fmt"

	"schoolrecords_backend/internals/store"
)

// ValidationError is bad input, rejected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is a referenced class/pupil/submission that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// StateError is an operation the current workflow status does not allow.
type StateError struct {
	Entity  string
	Status  string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is %s: %s", e.Entity, e.Status, e.Message)
}

func State(entity, status, format string, args ...any) error {
	return &StateError{Entity: entity, Status: status, Message: fmt.Sprintf(format, args...)}
}

// ContentionError means a transaction's read set changed concurrently; retryable.
type ContentionError struct {
	Op  string
	Err error
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("%s: concurrent modification, retry the operation", e.Op)
}

func (e *ContentionError) Unwrap() error { return e.Err }

// PartialExecutionError means a batch chunk failed after at least one earlier chunk was
// committed. Nothing is rolled back; the snapshot is the reconciliation reference.
type PartialExecutionError struct {
	SnapshotID   string
	FailedChunk  int
	CompletedOps int
	Err          error
}

func (e *PartialExecutionError) Error() string {
	return fmt.Sprintf("partial execution: chunk %d failed after %d operations were committed (snapshot %s): %v",
		e.FailedChunk, e.CompletedOps, e.SnapshotID, e.Err)
}

func (e *PartialExecutionError) Unwrap() error { return e.Err }

// Retryable reports whether re-invoking the same operation may succeed.
func Retryable(err error) bool {
	var ce *ContentionError
	return errors.As(err, &ce) || errors.Is(err, store.ErrContention)
}

// FromStore converts store sentinels into taxonomy errors.
func FromStore(op, kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return NotFound(kind, id)
	case errors.Is(err, store.ErrContention):
		return &ContentionError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
