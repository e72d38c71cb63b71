package service

import "fmt"

// ConflictError means an immediate-sync update found the remote copy at a
// different version than the one the edit was based on. The local optimistic
// write has already been rolled back when this surfaces.
type ConflictError struct {
	TaskID        string
	BaseVersion   int64
	RemoteVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s: remote changed since last read (base v%d, remote v%d)",
		e.TaskID, e.BaseVersion, e.RemoteVersion)
}

// TransactionError wraps a failed immediate-sync write. RolledBack reports
// whether the compensating local write succeeded.
type TransactionError struct {
	Op         string
	TaskID     string
	Cause      error
	RolledBack bool
}

func (e *TransactionError) Error() string {
	outcome := "local change rolled back"
	if !e.RolledBack {
		outcome = "local rollback also failed"
	}
	return fmt.Sprintf("%s for task %s failed, %s: %v", e.Op, e.TaskID, outcome, e.Cause)
}

func (e *TransactionError) Unwrap() error { return e.Cause }
