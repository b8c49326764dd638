package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("storage: conflict")
	// ErrUnavailable is returned when the backing store cannot be reached or
	// has no free connections.
	ErrUnavailable = errors.New("storage: unavailable")
	// ErrNotFound is returned by updates whose target row does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// LockedError is returned by the lock primitives when the lock was not acquired.
type LockedError struct {
	Key LockKey
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("storage: lock %d is held", e.Key)
}

// IsLocked reports whether err is or wraps a *LockedError.
func IsLocked(err error) bool {
	var le *LockedError
	return errors.As(err, &le)
}
