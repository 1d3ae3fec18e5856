package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

// PersistenceError wraps any failure of the underlying database. Op names
// the store operation, e.g. "cache.put" or "oplog.append".
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func fail(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
