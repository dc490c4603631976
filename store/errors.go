package store

import "errors"

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when a unique key (user email, record id) is taken.
	ErrDuplicate = errors.New("store: duplicate record")
	// ErrConflict is returned by compare-and-set updates whose precondition no
	// longer holds (token already rotated, already used).
	ErrConflict = errors.New("store: concurrent modification")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrTxAborted is returned when an optimistic transaction kept losing to
	// concurrent writers and ran out of retries.
	ErrTxAborted = errors.New("store: transaction aborted after retries")
)
