package repo

import (
	"errors"
	"fmt"
)

// StorageError means the repository's underlying medium failed (disk or
// network I/O). It is always surfaced; repositories never retry on their
// own.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotFoundError means the requested id does not exist in the targeted store
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.ID)
}

// VersionError means a write would have decreased a task's version
type VersionError struct {
	ID     string
	Stored int64
	Given  int64
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("task %s: version %d would regress stored version %d",
		e.ID, e.Given, e.Stored)
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
