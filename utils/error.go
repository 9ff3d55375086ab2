package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError: value out of range/shape, or an operation attempted
// against the wrong session status. Surfaced to the caller immediately,
// never retried.
type ValidationError struct {
	Message string
	// ItemIds carries the violating catalog items for completeness checks,
	// sorted by display order.
	ItemIds []int
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NewItemValidationError carries the violating item ids alongside the
// message.
func NewItemValidationError(itemIds []int, format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...), ItemIds: itemIds}
}

// ConflictError: the session advanced past what the caller believed.
// The caller must re-fetch before retrying.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflictError(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// TransientIOError: network/storage failure during an autosave or toggle.
// Recoverable at the level of the single operation that raised it.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

func NewTransientIOError(op string, err error) error {
	return &TransientIOError{Op: op, Err: err}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrorRecordNotFound)
}

func IsTransientIOError(err error) bool {
	var te *TransientIOError
	return errors.As(err, &te)
}
