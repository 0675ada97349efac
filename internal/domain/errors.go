package domain

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy. Step code branches on these categories rather than on
// raw driver errors; repositories wrap driver failures into one of them at the
// boundary.

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidState indicates an operation against a record in a terminal state,
	// e.g. finalizing an already finalized batch.
	ErrInvalidState = errors.New("invalid record state")

	// ErrConcurrentBatch indicates another batch already holds the warehouse
	// writer lock.
	ErrConcurrentBatch = errors.New("concurrent batch detected")
)

// StructuralError is fatal to the batch: the source is unreachable or its shape
// does not match expectations. Remaining steps are skipped.
type StructuralError struct {
	Op  string
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural failure in %s: %v", e.Op, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// RowTransformError covers a single-record derivation failure. The row is
// skipped, counted as failed and recorded; the step continues.
type RowTransformError struct {
	SourceTable string
	SourceKey   string
	Err         error
}

func (e *RowTransformError) Error() string {
	return fmt.Sprintf("row transform failed for %s[%s]: %v", e.SourceTable, e.SourceKey, e.Err)
}

func (e *RowTransformError) Unwrap() error { return e.Err }

// PersistenceError indicates a ledger or audit write could not be durably
// committed. Logging failures fall back to the diagnostic stream and never
// abort the business operation they describe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
