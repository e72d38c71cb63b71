// Package sqlite implements the task repository against the local SQLite
// store. This is the copy the UI reads and writes; it must stay fast and
// must survive the process regardless of what the remote side is doing.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/ironsync/internal/db"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/repo"
)

// timeLayout is fixed-width so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Repository is the local TaskRepository backed by SQLite
type Repository struct {
	db *db.DB
}

// New creates a repository over an open database
func New(database *db.DB) *Repository {
	return &Repository{db: database}
}

var _ repo.TaskRepository = (*Repository)(nil)

const taskColumns = `id, name, description, done, alarm_time, frequency,
	alarm_interval, user_id, created_at, updated_at, deleted_at, version,
	sync_status, sync_error`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Tolerate rows written by older builds
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	var (
		t                 model.Task
		done              int
		alarmTime         string
		createdAt         string
		updatedAt         string
		description       sql.NullString
		deletedAt         sql.NullString
		syncError         sql.NullString
		frequency, status string
	)
	err := row.Scan(&t.ID, &t.Name, &description, &done, &alarmTime,
		&frequency, &t.AlarmInterval, &t.UserID, &createdAt, &updatedAt,
		&deletedAt, &t.Version, &status, &syncError)
	if err != nil {
		return nil, err
	}
	t.Done = done != 0
	if alarmTime != "" {
		t.AlarmTime = parseTime(alarmTime)
	}
	t.Frequency = model.Frequency(frequency)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if description.Valid {
		t.Description = &description.String
	}
	if deletedAt.Valid {
		d := parseTime(deletedAt.String)
		t.DeletedAt = &d
	}
	t.SyncStatus = model.SyncStatus(status)
	if syncError.Valid {
		t.SyncError = &syncError.String
	}
	return &t, nil
}

// GetAll implements repo.TaskRepository
func (r *Repository) GetAll(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, &repo.StorageError{Op: "sqlite.GetAll", Err: err}
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, &repo.StorageError{Op: "sqlite.GetAll", Err: err}
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, &repo.StorageError{Op: "sqlite.GetAll", Err: err}
	}
	return tasks, nil
}

// GetByID implements repo.TaskRepository
func (r *Repository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, &repo.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &repo.StorageError{Op: "sqlite.GetByID", Err: err}
	}
	return t, nil
}

// GetByStatus implements repo.TaskRepository
func (r *Repository) GetByStatus(ctx context.Context, status model.SyncStatus) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE sync_status = ?
		ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, &repo.StorageError{Op: "sqlite.GetByStatus", Err: err}
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, &repo.StorageError{Op: "sqlite.GetByStatus", Err: err}
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, &repo.StorageError{Op: "sqlite.GetByStatus", Err: err}
	}
	return tasks, nil
}

// Create implements repo.TaskRepository. Missing id, timestamps and version
// are filled in here so callers can hand over partially-built records.
func (r *Repository) Create(ctx context.Context, t model.Task) (*model.Task, error) {
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

	done := 0
	if t.Done {
		done = 1
	}
	var deletedAt, description, syncError any
	if t.DeletedAt != nil {
		deletedAt = formatTime(*t.DeletedAt)
	}
	if t.Description != nil {
		description = *t.Description
	}
	if t.SyncError != nil {
		syncError = *t.SyncError
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, description, done, alarm_time, frequency,
			alarm_interval, user_id, created_at, updated_at, deleted_at,
			version, sync_status, sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, description, done, formatTime(t.AlarmTime),
		string(t.Frequency), t.AlarmInterval, t.UserID,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), deletedAt,
		t.Version, string(t.SyncStatus), syncError)
	if err != nil {
		return nil, &repo.StorageError{Op: "sqlite.Create", Err: err}
	}
	return &t, nil
}

// Update implements repo.TaskRepository. The read-merge-write runs in a
// transaction so the row's multi-field write is all-or-nothing.
func (r *Repository) Update(ctx context.Context, id string, changes model.TaskChanges) (*model.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &repo.StorageError{Op: "sqlite.Update", Err: err}
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	current, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, &repo.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &repo.StorageError{Op: "sqlite.Update", Err: err}
	}

	if !changes.ForceVersion && changes.Version != nil && *changes.Version < current.Version {
		return nil, &repo.VersionError{ID: id, Stored: current.Version, Given: *changes.Version}
	}

	updated := changes.ApplyTo(*current)

	done := 0
	if updated.Done {
		done = 1
	}
	var deletedAt, description, syncError any
	if updated.DeletedAt != nil {
		deletedAt = formatTime(*updated.DeletedAt)
	}
	if updated.Description != nil {
		description = *updated.Description
	}
	if updated.SyncError != nil {
		syncError = *updated.SyncError
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET name = ?, description = ?, done = ?, alarm_time = ?,
			frequency = ?, alarm_interval = ?, updated_at = ?, deleted_at = ?,
			version = ?, sync_status = ?, sync_error = ?
		WHERE id = ?`,
		updated.Name, description, done, formatTime(updated.AlarmTime),
		string(updated.Frequency), updated.AlarmInterval,
		formatTime(updated.UpdatedAt), deletedAt, updated.Version,
		string(updated.SyncStatus), syncError, id)
	if err != nil {
		return nil, &repo.StorageError{Op: "sqlite.Update", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &repo.StorageError{Op: "sqlite.Update", Err: err}
	}
	return &updated, nil
}

// Delete implements repo.TaskRepository. Physical removal; the user-facing
// delete goes through Update with a deleted_at tombstone instead.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return &repo.StorageError{Op: "sqlite.Delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &repo.StorageError{Op: "sqlite.Delete", Err: err}
	}
	if n == 0 {
		return &repo.NotFoundError{ID: id}
	}
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

// MarkSynced implements repo.TaskRepository. The version guard makes this a
// no-op when a newer local edit arrived after the sync started.
func (r *Repository) MarkSynced(ctx context.Context, id string, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET sync_status = ?, sync_error = NULL
		WHERE id = ? AND version = ?`,
		string(model.SyncStatusSynced), id, version)
	if err != nil {
		return &repo.StorageError{Op: "sqlite.MarkSynced", Err: err}
	}
	return nil
}

// MarkError implements repo.TaskRepository
func (r *Repository) MarkError(ctx context.Context, id, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET sync_status = ?, sync_error = ?
		WHERE id = ?`,
		string(model.SyncStatusError), message, id)
	if err != nil {
		return &repo.StorageError{Op: "sqlite.MarkError", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &repo.StorageError{Op: "sqlite.MarkError", Err: err}
	}
	if n == 0 {
		return &repo.NotFoundError{ID: id}
	}
	return nil
}

// Purge physically removes soft-deleted rows that both sides have converged
// on (sync_status synced with a tombstone present).
func (r *Repository) Purge(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE deleted_at IS NOT NULL AND sync_status = ?`,
		string(model.SyncStatusSynced))
	if err != nil {
		return 0, &repo.StorageError{Op: "sqlite.Purge", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &repo.StorageError{Op: "sqlite.Purge", Err: err}
	}
	return n, nil
}
