// Package resolver decides which of two divergent copies of a task wins.
// Everything here is pure: no I/O, no clocks, same inputs same answer.
package resolver

import (
	"fmt"

	"github.com/existflow/ironsync/internal/model"
)

// Strategy selects how Resolve combines the two sides
type Strategy int

const (
	// UseLocal returns the local copy unchanged
	UseLocal Strategy = iota
	// UseRemote returns the remote copy unchanged
	UseRemote
	// Merge takes each field from the side with the later edit and
	// out-versions both inputs
	Merge
	// Manual refuses to decide and hands both copies to a human-facing flow
	Manual
)

// String returns the strategy name
func (s Strategy) String() string {
	switch s {
	case UseLocal:
		return "use_local"
	case UseRemote:
		return "use_remote"
	case Merge:
		return "merge"
	case Manual:
		return "manual"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ManualConflictError carries both copies out to whatever flow asked for a
// manual decision
type ManualConflictError struct {
	Local  model.Task
	Remote model.Task
}

func (e *ManualConflictError) Error() string {
	return fmt.Sprintf("task %s: manual conflict resolution required (local v%d, remote v%d)",
		e.Local.ID, e.Local.Version, e.Remote.Version)
}

// Resolve returns the single task that should survive a conflict between a
// local and a remote copy of the same id.
func Resolve(local, remote model.Task, strategy Strategy) (model.Task, error) {
	switch strategy {
	case UseLocal:
		return local.Clone(), nil
	case UseRemote:
		return remote.Clone(), nil
	case Merge:
		return merge(local, remote), nil
	case Manual:
		return model.Task{}, &ManualConflictError{Local: local.Clone(), Remote: remote.Clone()}
	default:
		return model.Task{}, fmt.Errorf("unknown conflict strategy %v", strategy)
	}
}

// merge takes every attribute from the side with the later updated_at. With
// one timestamp per record that means the later side's fields win wholesale;
// the result's version exceeds both inputs so the next comparison recognizes
// it as authoritative.
func merge(local, remote model.Task) model.Task {
	base := local
	if remote.UpdatedAt.After(local.UpdatedAt) {
		base = remote
	}
	out := base.Clone()
	out.Version = maxVersion(local.Version, remote.Version) + 1
	out.SyncStatus = model.SyncStatusPending
	return out
}

func maxVersion(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Winner identifies which side the default sweep policy picked
type Winner int

const (
	// NoConflict means the versions agree and nothing needs resolving
	NoConflict Winner = iota
	// LocalWins means the local copy should overwrite the remote
	LocalWins
	// RemoteWins means the remote copy should overwrite the local
	RemoteWins
)

// PickWinner is the default policy for reconciliation sweeps: equal versions
// mean no conflict, otherwise the later updated_at wins outright. Whole
// records win rather than merged field sets, so the surviving value is
// always something a user actually entered.
func PickWinner(local, remote model.Task) Winner {
	if local.Version == remote.Version {
		return NoConflict
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return RemoteWins
	}
	return LocalWins
}
