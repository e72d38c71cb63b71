// Package memory implements the task repository in process memory. It backs
// the orchestrator and daemon tests and doubles as a stand-in remote store
// whose failures can be scripted.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/repo"
)

// Repository is an in-memory TaskRepository.
//
// FailWith, when set, makes every mutating call fail with that error. Tests
// use it to simulate an unreachable or broken store.
type Repository struct {
	mu       sync.Mutex
	tasks    map[string]model.Task
	FailWith error
}

// New creates an empty repository
func New() *Repository {
	return &Repository{tasks: make(map[string]model.Task)}
}

var _ repo.TaskRepository = (*Repository)(nil)

// GetAll implements repo.TaskRepository
func (r *Repository) GetAll(ctx context.Context, userID string) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, &repo.StorageError{Op: "memory.GetAll", Err: r.FailWith}
	}
	var tasks []model.Task
	for _, t := range r.tasks {
		if t.UserID == userID && t.DeletedAt == nil {
			tasks = append(tasks, t.Clone())
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// GetByID implements repo.TaskRepository
func (r *Repository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, &repo.StorageError{Op: "memory.GetByID", Err: r.FailWith}
	}
	t, ok := r.tasks[id]
	if !ok {
		return nil, &repo.NotFoundError{ID: id}
	}
	c := t.Clone()
	return &c, nil
}

// GetByStatus implements repo.TaskRepository
func (r *Repository) GetByStatus(ctx context.Context, status model.SyncStatus) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, &repo.StorageError{Op: "memory.GetByStatus", Err: r.FailWith}
	}
	var tasks []model.Task
	for _, t := range r.tasks {
		if t.SyncStatus == status {
			tasks = append(tasks, t.Clone())
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Create implements repo.TaskRepository
func (r *Repository) Create(ctx context.Context, t model.Task) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, &repo.StorageError{Op: "memory.Create", Err: r.FailWith}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if t.SyncStatus == "" {
		t.SyncStatus = model.SyncStatusPending
	}
	r.tasks[t.ID] = t.Clone()
	return &t, nil
}

// Update implements repo.TaskRepository
func (r *Repository) Update(ctx context.Context, id string, changes model.TaskChanges) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, &repo.StorageError{Op: "memory.Update", Err: r.FailWith}
	}
	current, ok := r.tasks[id]
	if !ok {
		return nil, &repo.NotFoundError{ID: id}
	}
	if !changes.ForceVersion && changes.Version != nil && *changes.Version < current.Version {
		return nil, &repo.VersionError{ID: id, Stored: current.Version, Given: *changes.Version}
	}
	updated := changes.ApplyTo(current)
	r.tasks[id] = updated.Clone()
	return &updated, nil
}

// Delete implements repo.TaskRepository
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return &repo.StorageError{Op: "memory.Delete", Err: r.FailWith}
	}
	if _, ok := r.tasks[id]; !ok {
		return &repo.NotFoundError{ID: id}
	}
	delete(r.tasks, id)
	return nil
}

// BulkCreate implements repo.TaskRepository
func (r *Repository) BulkCreate(ctx context.Context, tasks []model.Task) ([]model.Task, []repo.BulkItem) {
	var created []model.Task
	var failed []repo.BulkItem
	for _, t := range tasks {
		stored, err := r.Create(ctx, t)
		if err != nil {
			failed = append(failed, repo.BulkItem{ID: t.ID, Err: err})
			continue
		}
		created = append(created, *stored)
	}
	return created, failed
}

// BulkUpdate implements repo.TaskRepository
func (r *Repository) BulkUpdate(ctx context.Context, changes map[string]model.TaskChanges) ([]model.Task, []repo.BulkItem) {
	var updated []model.Task
	var failed []repo.BulkItem
	for id, ch := range changes {
		stored, err := r.Update(ctx, id, ch)
		if err != nil {
			failed = append(failed, repo.BulkItem{ID: id, Err: err})
			continue
		}
		updated = append(updated, *stored)
	}
	return updated, failed
}

// BulkDelete implements repo.TaskRepository
func (r *Repository) BulkDelete(ctx context.Context, ids []string) []repo.BulkItem {
	var failed []repo.BulkItem
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			failed = append(failed, repo.BulkItem{ID: id, Err: err})
		}
	}
	return failed
}

// MarkSynced implements repo.TaskRepository
func (r *Repository) MarkSynced(ctx context.Context, id string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return &repo.StorageError{Op: "memory.MarkSynced", Err: r.FailWith}
	}
	t, ok := r.tasks[id]
	if !ok || t.Version != version {
		return nil
	}
	t.SyncStatus = model.SyncStatusSynced
	t.SyncError = nil
	r.tasks[id] = t
	return nil
}

// MarkError implements repo.TaskRepository
func (r *Repository) MarkError(ctx context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return &repo.StorageError{Op: "memory.MarkError", Err: r.FailWith}
	}
	t, ok := r.tasks[id]
	if !ok {
		return &repo.NotFoundError{ID: id}
	}
	t.SyncStatus = model.SyncStatusError
	t.SyncError = &message
	r.tasks[id] = t
	return nil
}

// Len returns the number of stored rows including tombstones
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Put stores a task verbatim, bypassing Create defaults. Tests use it to
// stage another device's view of the world.
func (r *Repository) Put(t model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t.Clone()
}
