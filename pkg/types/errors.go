package types

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrUnitKindMismatch   = errors.New("cannot mix token and word units")
	ErrInvariantViolation = errors.New("merge invariant violation")
	ErrPartition          = errors.New("invalid line partition")
	ErrLookupMiss         = errors.New("record not found in index")
	ErrEmptyRecord        = errors.New("record text is empty")
)

// EncodingError reports a record that could not be decoded or encoded.
// It aborts the worker that hit it.
type EncodingError struct {
	Path   string
	Line   int
	Worker int
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s:%d (worker %d): %v", e.Path, e.Line+1, e.Worker, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// PartitionError reports line ranges that overlap or leave gaps
type PartitionError struct {
	Path   string
	Reason string
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Path, ErrPartition, e.Reason)
}

func (e *PartitionError) Unwrap() error {
	return ErrPartition
}

// InvariantError reports a merged index that violates one of its invariants
type InvariantError struct {
	Check  string
	Detail string
}

// NewInvariantError builds an InvariantError with a formatted detail
func NewInvariantError(check, format string, args ...any) *InvariantError {
	return &InvariantError{Check: check, Detail: fmt.Sprintf(format, args...)}
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvariantViolation, e.Check, e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// WorkerError attaches file and worker context to a failed worker
type WorkerError struct {
	Path   string
	Worker int
	Range  LineRange
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d on %s lines %s failed: %v", e.Worker, e.Path, e.Range, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}
