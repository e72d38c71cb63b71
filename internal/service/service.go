// Package service contains the sync orchestrator: the single entry point
// for all task mutations. Every accepted write lands in the local store
// before the call returns; the remote side is either pushed synchronously
// with rollback on failure or deferred through the operation queue.
package service

import (
	"context"
	"time"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/queue"
	"github.com/existflow/ironsync/internal/repo"
)

// Options controls how mutations reach the remote store
type Options struct {
	// SyncEnabled turns remote coordination on. When false every mutation
	// is purely local.
	SyncEnabled bool

	// SyncOnWrite pushes each mutation to the remote store before the call
	// returns, rolling back the local write if the push fails. When false,
	// mutations are queued for the background daemon instead.
	SyncOnWrite bool
}

// TaskService sequences local-then-remote writes for tasks
type TaskService struct {
	local  repo.TaskRepository
	remote repo.TaskRepository
	queue  *queue.Queue
	opts   Options
}

// New creates a TaskService. The queue may be nil only when sync is
// disabled.
func New(local, remote repo.TaskRepository, q *queue.Queue, opts Options) *TaskService {
	return &TaskService{local: local, remote: remote, queue: q, opts: opts}
}

// CreateTaskInput is the caller-supplied part of a new task
type CreateTaskInput struct {
	Name          string
	Description   *string
	AlarmTime     time.Time
	Frequency     model.Frequency
	AlarmInterval int
	UserID        string
}

// UpdateTaskInput is the caller-editable part of an existing task
type UpdateTaskInput struct {
	Name          *string
	Description   *string
	Done          *bool
	AlarmTime     *time.Time
	Frequency     *model.Frequency
	AlarmInterval *int
}

func (in UpdateTaskInput) changes() model.TaskChanges {
	return model.TaskChanges{
		Name:          in.Name,
		Description:   in.Description,
		Done:          in.Done,
		AlarmTime:     in.AlarmTime,
		Frequency:     in.Frequency,
		AlarmInterval: in.AlarmInterval,
	}
}

// CreateTask writes the task locally, then either pushes it to the remote
// store, queues it for background sync, or stops there when sync is off.
//
// An immediate-sync failure deletes the just-created local record before
// surfacing: an orphaned record with no path to the server is worse than
// telling the caller the write did not stick.
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (*model.Task, error) {
	t := model.NewTask(in.UserID, in.Name)
	t.Description = in.Description
	t.AlarmTime = in.AlarmTime
	if in.Frequency != "" {
		t.Frequency = in.Frequency
	}
	t.AlarmInterval = in.AlarmInterval

	stored, err := s.local.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	logger.Debug("Task created locally",
		logger.F("id", stored.ID), logger.F("name", stored.Name))

	if !s.opts.SyncEnabled {
		return stored, nil
	}

	if s.opts.SyncOnWrite {
		pushed := stored.Clone()
		pushed.SyncStatus = model.SyncStatusSynced
		if _, err := s.remote.Create(ctx, pushed); err != nil {
			rbErr := s.local.Delete(ctx, stored.ID)
			if rbErr != nil {
				logger.Error("Rollback of local create failed",
					logger.F("id", stored.ID), logger.F("error", rbErr))
			}
			return nil, &TransactionError{
				Op:         "create",
				TaskID:     stored.ID,
				Cause:      err,
				RolledBack: rbErr == nil,
			}
		}
		if err := s.local.MarkSynced(ctx, stored.ID, stored.Version); err != nil {
			return nil, err
		}
		stored.SyncStatus = model.SyncStatusSynced
		logger.Info("Task created and synced", logger.F("id", stored.ID))
		return stored, nil
	}

	op := queue.Operation{Kind: queue.KindCreate, TaskID: stored.ID, Task: *stored}
	if err := s.queue.Enqueue(ctx, op); err != nil {
		return nil, err
	}
	logger.Debug("Create queued for background sync", logger.F("id", stored.ID))
	return stored, nil
}

// UpdateTask applies the changes locally with a bumped version, then syncs
// or queues like CreateTask. In immediate mode a remote version mismatch
// restores the pre-update snapshot and surfaces a ConflictError.
func (s *TaskService) UpdateTask(ctx context.Context, id string, in UpdateTaskInput) (*model.Task, error) {
	return s.applyUpdate(ctx, id, in.changes())
}

// DeleteTask is an update that sets the soft-delete tombstone, reusing the
// full update path including its rollback semantics. The row stays put so
// the deletion propagates through sync.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.applyUpdate(ctx, id, model.TaskChanges{DeletedAt: &now})
	return err
}

func (s *TaskService) applyUpdate(ctx context.Context, id string, changes model.TaskChanges) (*model.Task, error) {
	current, err := s.local.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Deleted() && changes.DeletedAt == nil {
		// Editing a tombstoned task is indistinguishable from editing a
		// missing one as far as callers are concerned.
		return nil, &repo.NotFoundError{ID: id}
	}

	snapshot := current.Clone()
	baseVersion := current.Version
	newVersion := baseVersion + 1
	pending := model.SyncStatusPending
	changes.Version = &newVersion
	changes.SyncStatus = &pending

	updated, err := s.local.Update(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	logger.Debug("Task updated locally",
		logger.F("id", id), logger.F("version", newVersion))

	if !s.opts.SyncEnabled {
		return updated, nil
	}

	if s.opts.SyncOnWrite {
		remoteTask, err := s.remote.GetByID(ctx, id)
		if err != nil {
			rolledBack := s.restore(ctx, snapshot)
			return nil, &TransactionError{
				Op:         "update",
				TaskID:     id,
				Cause:      err,
				RolledBack: rolledBack,
			}
		}
		if remoteTask.Version != baseVersion {
			s.restore(ctx, snapshot)
			logger.Warn("Update conflicts with remote edit",
				logger.F("id", id),
				logger.F("base", baseVersion),
				logger.F("remote", remoteTask.Version))
			return nil, &ConflictError{
				TaskID:        id,
				BaseVersion:   baseVersion,
				RemoteVersion: remoteTask.Version,
			}
		}

		synced := model.SyncStatusSynced
		remoteChanges := model.ChangesFromTask(*updated)
		remoteChanges.SyncStatus = &synced
		if _, err := s.remote.Update(ctx, id, remoteChanges); err != nil {
			rolledBack := s.restore(ctx, snapshot)
			return nil, &TransactionError{
				Op:         "update",
				TaskID:     id,
				Cause:      err,
				RolledBack: rolledBack,
			}
		}
		if err := s.local.MarkSynced(ctx, id, newVersion); err != nil {
			return nil, err
		}
		updated.SyncStatus = model.SyncStatusSynced
		logger.Info("Task updated and synced",
			logger.F("id", id), logger.F("version", newVersion))
		return updated, nil
	}

	op := queue.Operation{
		Kind:        queue.KindUpdate,
		TaskID:      id,
		Task:        *updated,
		PrevVersion: &baseVersion,
	}
	if err := s.queue.Enqueue(ctx, op); err != nil {
		return nil, err
	}
	logger.Debug("Update queued for background sync",
		logger.F("id", id), logger.F("prevVersion", baseVersion))
	return updated, nil
}

// restore writes the pre-update snapshot back, bypassing the version guard.
// Returns true when the compensating write succeeded.
func (s *TaskService) restore(ctx context.Context, snapshot model.Task) bool {
	ch := model.ChangesFromTask(snapshot)
	ch.ForceVersion = true
	if _, err := s.local.Update(ctx, snapshot.ID, ch); err != nil {
		logger.Error("Rollback of local update failed",
			logger.F("id", snapshot.ID), logger.F("error", err))
		return false
	}
	return true
}

// GetTask reads one task from the local store
func (s *TaskService) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return s.local.GetByID(ctx, id)
}

// GetAllTasks reads the user's active tasks from the local store
func (s *TaskService) GetAllTasks(ctx context.Context, userID string) ([]model.Task, error) {
	return s.local.GetAll(ctx, userID)
}

// PendingCount reports how many operations are waiting for background sync
func (s *TaskService) PendingCount(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, nil
	}
	return s.queue.Len(ctx)
}
