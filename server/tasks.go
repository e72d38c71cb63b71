package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
)

const taskColumns = `id, name, description, done, alarm_time, frequency,
	alarm_interval, user_id, created_at, updated_at, deleted_at, version,
	sync_status, sync_error`

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	var (
		t           model.Task
		description sql.NullString
		alarmTime   sql.NullTime
		deletedAt   sql.NullTime
		syncError   sql.NullString
		frequency   string
		status      string
	)
	err := row.Scan(&t.ID, &t.Name, &description, &t.Done, &alarmTime,
		&frequency, &t.AlarmInterval, &t.UserID, &t.CreatedAt, &t.UpdatedAt,
		&deletedAt, &t.Version, &status, &syncError)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	if alarmTime.Valid {
		t.AlarmTime = alarmTime.Time
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}
	t.Frequency = model.Frequency(frequency)
	t.SyncStatus = model.SyncStatus(status)
	if syncError.Valid {
		t.SyncError = &syncError.String
	}
	return &t, nil
}

type taskListResponse struct {
	Tasks []model.Task `json:"tasks"`
}

// handleListTasks returns a user's active tasks, newest created first
func (s *Server) handleListTasks(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id required"})
	}

	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rows.Close()

	resp := taskListResponse{Tasks: []model.Task{}}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		resp.Tasks = append(resp.Tasks, *t)
	}

	return c.JSON(http.StatusOK, resp)
}

// handleListByStatus returns all tasks in a given sync status
func (s *Server) handleListByStatus(c echo.Context) error {
	status, err := model.ParseSyncStatus(c.Param("status"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE sync_status = $1
		ORDER BY created_at DESC`, string(status))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rows.Close()

	resp := taskListResponse{Tasks: []model.Task{}}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		resp.Tasks = append(resp.Tasks, *t)
	}

	return c.JSON(http.StatusOK, resp)
}

// handleGetTask returns one task, tombstoned or not, or a distinguishable
// 404
func (s *Server) handleGetTask(c echo.Context) error {
	id := c.Param("id")

	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, t)
}

// handleCreateTask upserts by id. Clients retry queued creates until they
// are confirmed, so replays of the same id must land on the same row.
func (s *Server) handleCreateTask(c echo.Context) error {
	var t model.Task
	if err := c.Bind(&t); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if t.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id required"})
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
	if t.Frequency == "" {
		t.Frequency = model.FrequencySingle
	}
	if t.SyncStatus == "" {
		t.SyncStatus = model.SyncStatusSynced
	}

	var description, syncError any
	if t.Description != nil {
		description = *t.Description
	}
	if t.SyncError != nil {
		syncError = *t.SyncError
	}
	var alarmTime, deletedAt any
	if !t.AlarmTime.IsZero() {
		alarmTime = t.AlarmTime
	}
	if t.DeletedAt != nil {
		deletedAt = *t.DeletedAt
	}

	// Replays with an older version leave the stored row alone; the
	// RETURNING row then comes from a follow-up select.
	row := s.db.QueryRow(`
		INSERT INTO tasks (id, name, description, done, alarm_time, frequency,
			alarm_interval, user_id, created_at, updated_at, deleted_at,
			version, sync_status, sync_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			done = EXCLUDED.done,
			alarm_time = EXCLUDED.alarm_time,
			frequency = EXCLUDED.frequency,
			alarm_interval = EXCLUDED.alarm_interval,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at,
			version = EXCLUDED.version,
			sync_status = EXCLUDED.sync_status,
			sync_error = EXCLUDED.sync_error
		WHERE tasks.version <= EXCLUDED.version
		RETURNING `+taskColumns,
		t.ID, t.Name, description, t.Done, alarmTime, string(t.Frequency),
		t.AlarmInterval, t.UserID, t.CreatedAt, t.UpdatedAt, deletedAt,
		t.Version, string(t.SyncStatus), syncError)

	stored, err := scanTask(row)
	if err == sql.ErrNoRows {
		row = s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, t.ID)
		stored, err = scanTask(row)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	logger.Debug("Task upserted",
		logger.F("id", stored.ID), logger.F("version", stored.Version))
	return c.JSON(http.StatusOK, stored)
}

// handleUpdateTask merges a partial change set into the stored row. A
// change set that would decrease the stored version is rejected with 409.
func (s *Server) handleUpdateTask(c echo.Context) error {
	id := c.Param("id")

	var changes model.TaskChanges
	if err := c.Bind(&changes); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	tx, err := s.db.Begin()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
	current, err := scanTask(row)
	if err == sql.ErrNoRows {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if !changes.ForceVersion && changes.Version != nil && *changes.Version < current.Version {
		return c.JSON(http.StatusConflict, map[string]int64{
			"stored_version": current.Version,
			"given_version":  *changes.Version,
		})
	}

	updated := changes.ApplyTo(*current)

	var description, syncError any
	if updated.Description != nil {
		description = *updated.Description
	}
	if updated.SyncError != nil {
		syncError = *updated.SyncError
	}
	var alarmTime, deletedAt any
	if !updated.AlarmTime.IsZero() {
		alarmTime = updated.AlarmTime
	}
	if updated.DeletedAt != nil {
		deletedAt = *updated.DeletedAt
	}

	_, err = tx.Exec(`
		UPDATE tasks SET name = $1, description = $2, done = $3,
			alarm_time = $4, frequency = $5, alarm_interval = $6,
			updated_at = $7, deleted_at = $8, version = $9,
			sync_status = $10, sync_error = $11
		WHERE id = $12`,
		updated.Name, description, updated.Done, alarmTime,
		string(updated.Frequency), updated.AlarmInterval, updated.UpdatedAt,
		deletedAt, updated.Version, string(updated.SyncStatus), syncError, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	logger.Debug("Task updated",
		logger.F("id", id), logger.F("version", updated.Version))
	return c.JSON(http.StatusOK, updated)
}

// handleDeleteTask physically removes a row, the final purge step once
// every device has converged on a deletion
func (s *Server) handleDeleteTask(c echo.Context) error {
	id := c.Param("id")

	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	n, err := res.RowsAffected()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if n == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
	}

	return c.NoContent(http.StatusNoContent)
}

// handleMarkSynced flips sync_status to synced when the stored version still
// matches
func (s *Server) handleMarkSynced(c echo.Context) error {
	id := c.Param("id")

	var body struct {
		Version int64 `json:"version"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	_, err := s.db.Exec(`
		UPDATE tasks SET sync_status = $1, sync_error = NULL
		WHERE id = $2 AND version = $3`,
		string(model.SyncStatusSynced), id, body.Version)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

// handleMarkError records a sync failure on the task
func (s *Server) handleMarkError(c echo.Context) error {
	id := c.Param("id")

	var body struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	res, err := s.db.Exec(`
		UPDATE tasks SET sync_status = $1, sync_error = $2
		WHERE id = $3`,
		string(model.SyncStatusError), body.Message, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	n, err := res.RowsAffected()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if n == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
	}

	return c.NoContent(http.StatusNoContent)
}
