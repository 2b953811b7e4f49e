package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a lookup that matched no row owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrStore is matched by every persistence failure.
	ErrStore = errors.New("store failure")

	// ErrShortIDExhausted is returned when every insert attempt collided.
	ErrShortIDExhausted = errors.New("short id attempts exhausted")

	// ErrDuplicateShortID signals a single collided insert attempt.
	ErrDuplicateShortID = errors.New("duplicate short id")
)

// StoreError wraps a persistence failure with the operation that caused it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStore.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

// NewStoreError wraps err, returning nil when err is nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
