// Package queue provides the durable log of mutations waiting to reach the
// remote store. Entries survive restarts and leave the queue only after the
// daemon confirms the remote accepted them, which gives at-least-once
// delivery; the remote tolerates duplicates because writes are keyed by
// task id.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/ironsync/internal/db"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/repo"
)

// Kind tags what a queued operation does to its task
type Kind string

const (
	KindCreate Kind = "CREATE"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// ParseKind converts a string to a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCreate, KindUpdate, KindDelete:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("invalid operation kind %q", s)
	}
}

// Operation is one pending mutation.
//
// Task carries the full record as it stood when the operation was queued.
// PrevVersion, set for updates, is the version the edit was based on and is
// what the daemon checks against the remote copy before applying.
type Operation struct {
	ID          string
	Kind        Kind
	TaskID      string
	Task        model.Task
	PrevVersion *int64
	RetryCount  int
	CreatedAt   time.Time
	LastError   *string
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Queue is the SQLite-backed operation queue. Only the orchestrator appends
// and only the daemon consumes; nothing else touches the table.
type Queue struct {
	db *db.DB
}

// New creates a queue over an open database
func New(database *db.DB) *Queue {
	return &Queue{db: database}
}

// Enqueue appends the operation with a fresh id and creation timestamp
func (q *Queue) Enqueue(ctx context.Context, op Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(op.Task)
	if err != nil {
		return fmt.Errorf("failed to encode operation payload: %w", err)
	}

	var prevVersion any
	if op.PrevVersion != nil {
		prevVersion = *op.PrevVersion
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, type, task_id, data, previous_version,
			retry_count, created_at, error)
		VALUES (?, ?, ?, ?, ?, 0, ?, NULL)`,
		op.ID, string(op.Kind), op.TaskID, string(payload), prevVersion,
		op.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return &repo.StorageError{Op: "queue.Enqueue", Err: err}
	}
	return nil
}

const opColumns = `id, type, task_id, data, previous_version, retry_count,
	created_at, error`

func scanOperation(row interface{ Scan(...any) error }) (*Operation, error) {
	var (
		op          Operation
		kind        string
		data        string
		prevVersion sql.NullInt64
		createdAt   string
		lastError   sql.NullString
	)
	err := row.Scan(&op.ID, &kind, &op.TaskID, &data, &prevVersion,
		&op.RetryCount, &createdAt, &lastError)
	if err != nil {
		return nil, err
	}
	op.Kind = Kind(kind)
	if err := json.Unmarshal([]byte(data), &op.Task); err != nil {
		return nil, fmt.Errorf("failed to decode operation payload: %w", err)
	}
	if prevVersion.Valid {
		op.PrevVersion = &prevVersion.Int64
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operation timestamp: %w", err)
	}
	op.CreatedAt = t
	if lastError.Valid {
		op.LastError = &lastError.String
	}
	return &op, nil
}

// Dequeue returns the operation with the earliest creation timestamp without
// removing it, or nil when the queue is empty. Removal happens through
// Remove after the remote confirmed the write.
func (q *Queue) Dequeue(ctx context.Context) (*Operation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+opColumns+` FROM sync_queue
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1`)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &repo.StorageError{Op: "queue.Dequeue", Err: err}
	}
	return op, nil
}

// Retry increments the retry count and records the failure, leaving the
// operation in place for a later dequeue
func (q *Queue) Retry(ctx context.Context, id, message string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = retry_count + 1, error = ?
		WHERE id = ?`, message, id)
	if err != nil {
		return &repo.StorageError{Op: "queue.Retry", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &repo.StorageError{Op: "queue.Retry", Err: err}
	}
	if n == 0 {
		return fmt.Errorf("operation %s not in queue", id)
	}
	return nil
}

// Remove deletes the operation; the only way an operation leaves the queue
// on success
func (q *Queue) Remove(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return &repo.StorageError{Op: "queue.Remove", Err: err}
	}
	return nil
}

// GetAll returns the full queue contents, oldest first
func (q *Queue) GetAll(ctx context.Context) ([]Operation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+opColumns+` FROM sync_queue
		ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, &repo.StorageError{Op: "queue.GetAll", Err: err}
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, &repo.StorageError{Op: "queue.GetAll", Err: err}
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, &repo.StorageError{Op: "queue.GetAll", Err: err}
	}
	return ops, nil
}

// Len returns the number of pending operations
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	if err != nil {
		return 0, &repo.StorageError{Op: "queue.Len", Err: err}
	}
	return n, nil
}
