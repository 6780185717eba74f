package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleProbe is returned when a probe is not newer than the last check.
	ErrStaleProbe = errors.New("stale probe result")
	// ErrTargetNotFound is returned by reads for a target that was never recorded.
	ErrTargetNotFound = errors.New("target not found")
	// ErrNoHistory is returned by aggregate reads for a target never probed.
	ErrNoHistory = errors.New("target has no probe history")
)

// StorageError wraps any failure of the persistence layer. A cycle that sees
// one has committed nothing.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err, returning nil for a nil err and leaving
// already-wrapped errors untouched.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// InvariantViolation describes persisted data that breaks a model invariant,
// e.g. two active sessions for one target.
type InvariantViolation struct {
	TargetID TargetID
	Detail   string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation for target %d: %s", v.TargetID, v.Detail)
}
