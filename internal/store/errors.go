package store

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable matches every storage failure: driver errors, timeouts,
	// a closed handle.
	ErrUnavailable = errors.New("storage unavailable")
	ErrNotFound    = errors.New("message not found")
)

// UnavailableError carries the failing operation and its cause.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}
