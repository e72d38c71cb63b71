// Package repo defines the storage-agnostic task repository contract shared
// by the local SQLite store and the remote sync service. The orchestrator
// and daemon depend only on this interface, so either side can be swapped
// for an in-memory fake in tests.
package repo

import (
	"context"

	"github.com/existflow/ironsync/internal/model"
)

// BulkItem reports the outcome for a single entry of a bulk call
type BulkItem struct {
	ID  string
	Err error
}

// TaskRepository is the uniform CRUD + sync-support contract for a task
// store.
//
// Implementations perform no conflict detection of their own; version checks
// are the caller's job. The one invariant every implementation enforces is
// that a write may never decrease a task's version.
type TaskRepository interface {
	// GetAll returns the active (non-deleted) tasks for a user, newest
	// created first. No rows is not an error.
	GetAll(ctx context.Context, userID string) ([]model.Task, error)

	// GetByID returns the task or a NotFoundError.
	GetByID(ctx context.Context, id string) (*model.Task, error)

	// GetByStatus returns all tasks currently in the given sync status.
	GetByStatus(ctx context.Context, status model.SyncStatus) ([]model.Task, error)

	// Create persists the task and returns the stored record.
	Create(ctx context.Context, t model.Task) (*model.Task, error)

	// Update merges the changes into the stored task and returns the
	// result. Returns NotFoundError if the id is absent.
	Update(ctx context.Context, id string, changes model.TaskChanges) (*model.Task, error)

	// Delete physically removes the row. The user-facing delete is a soft
	// delete applied through Update; this is the purge path.
	Delete(ctx context.Context, id string) error

	// Bulk variants are atomic per item, best-effort per batch. Failures
	// are reported per item in the second return value.
	BulkCreate(ctx context.Context, tasks []model.Task) ([]model.Task, []BulkItem)
	BulkUpdate(ctx context.Context, changes map[string]model.TaskChanges) ([]model.Task, []BulkItem)
	BulkDelete(ctx context.Context, ids []string) []BulkItem

	// MarkSynced sets sync_status = synced only if the stored version still
	// equals version. A newer local edit that landed mid-sync is left
	// alone.
	MarkSynced(ctx context.Context, id string, version int64) error

	// MarkError records a terminal sync failure on the task.
	MarkError(ctx context.Context, id, message string) error
}
