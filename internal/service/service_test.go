package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/existflow/ironsync/internal/db"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/queue"
	"github.com/existflow/ironsync/internal/repo"
	"github.com/existflow/ironsync/internal/repo/memory"
	"github.com/existflow/ironsync/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return queue.New(database)
}

func TestCreateTaskLocalOnly(t *testing.T) {
	local := memory.New()
	svc := service.New(local, memory.New(), nil, service.Options{})

	task, err := svc.CreateTask(context.Background(), service.CreateTaskInput{
		Name:   "offline only",
		UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), task.Version)
	assert.Equal(t, model.SyncStatusPending, task.SyncStatus)
	assert.Equal(t, 1, local.Len())
}

func TestCreateTaskSyncOnWrite(t *testing.T) {
	local := memory.New()
	remote := memory.New()
	svc := service.New(local, remote, nil, service.Options{SyncEnabled: true, SyncOnWrite: true})

	task, err := svc.CreateTask(context.Background(), service.CreateTaskInput{
		Name:   "pushed immediately",
		UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, task.SyncStatus)

	stored, err := remote.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "pushed immediately", stored.Name)
	assert.Equal(t, model.SyncStatusSynced, stored.SyncStatus, "the remote row must not sit in pending")
}

func TestCreateTaskSyncOnWriteRollsBack(t *testing.T) {
	local := memory.New()
	remote := memory.New()
	remote.FailWith = errors.New("connection refused")
	svc := service.New(local, remote, nil, service.Options{SyncEnabled: true, SyncOnWrite: true})

	_, err := svc.CreateTask(context.Background(), service.CreateTaskInput{
		Name:   "doomed",
		UserID: "user-1",
	})
	require.Error(t, err)

	var txErr *service.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.True(t, txErr.RolledBack)
	assert.Equal(t, 0, local.Len(), "failed immediate create must not leave a local record")
}

func TestCreateTaskQueued(t *testing.T) {
	local := memory.New()
	q := openTestQueue(t)
	svc := service.New(local, memory.New(), q, service.Options{SyncEnabled: true})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "queued", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusPending, task.SyncStatus)

	op, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, queue.KindCreate, op.Kind)
	assert.Equal(t, task.ID, op.TaskID)

	n, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateTaskBumpsVersion(t *testing.T) {
	local := memory.New()
	svc := service.New(local, memory.New(), nil, service.Options{})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "v1", UserID: "user-1"})
	require.NoError(t, err)

	name := "v2"
	updated, err := svc.UpdateTask(ctx, task.ID, service.UpdateTaskInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, model.SyncStatusPending, updated.SyncStatus)

	name = "v3"
	updated, err = svc.UpdateTask(ctx, task.ID, service.UpdateTaskInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version, "version must grow by exactly one per accepted write")
}

func TestUpdateTaskQueuedCarriesBaseVersion(t *testing.T) {
	local := memory.New()
	q := openTestQueue(t)
	svc := service.New(local, memory.New(), q, service.Options{SyncEnabled: true})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "tracked", UserID: "user-1"})
	require.NoError(t, err)
	// drop the queued create to look at the update alone
	op, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, op.ID))

	done := true
	_, err = svc.UpdateTask(ctx, task.ID, service.UpdateTaskInput{Done: &done})
	require.NoError(t, err)

	op, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, queue.KindUpdate, op.Kind)
	require.NotNil(t, op.PrevVersion)
	assert.Equal(t, int64(1), *op.PrevVersion)
	assert.Equal(t, int64(2), op.Task.Version)
}

func TestUpdateTaskConflictRestoresSnapshot(t *testing.T) {
	local := memory.New()
	remote := memory.New()
	svc := service.New(local, remote, nil, service.Options{SyncEnabled: true, SyncOnWrite: true})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "shared", UserID: "user-1"})
	require.NoError(t, err)

	// Another device already pushed version 2
	remoteCopy, err := remote.GetByID(ctx, task.ID)
	require.NoError(t, err)
	remoteCopy.Version = 2
	remoteCopy.Name = "edited elsewhere"
	remote.Put(*remoteCopy)

	name := "my edit"
	_, err = svc.UpdateTask(ctx, task.ID, service.UpdateTaskInput{Name: &name})
	require.Error(t, err)

	var conflict *service.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.BaseVersion)
	assert.Equal(t, int64(2), conflict.RemoteVersion)

	got, err := local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Name, "local record must return to its pre-update state")
	assert.Equal(t, int64(1), got.Version)
}

func TestUpdateTaskRemoteFailureRollsBack(t *testing.T) {
	local := memory.New()
	remote := memory.New()
	svc := service.New(local, remote, nil, service.Options{SyncEnabled: true, SyncOnWrite: true})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "stable", UserID: "user-1"})
	require.NoError(t, err)

	remote.FailWith = errors.New("server down")
	name := "never lands"
	_, err = svc.UpdateTask(ctx, task.ID, service.UpdateTaskInput{Name: &name})
	require.Error(t, err)

	var txErr *service.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.True(t, txErr.RolledBack)

	got, err := local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "stable", got.Name)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, model.SyncStatusSynced, got.SyncStatus, "snapshot restore keeps the pre-update status")
}

func TestDeleteTaskSetsTombstone(t *testing.T) {
	local := memory.New()
	q := openTestQueue(t)
	svc := service.New(local, memory.New(), q, service.Options{SyncEnabled: true})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "short lived", UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, task.ID))

	got, err := local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted(), "delete must tombstone, not remove")
	assert.Equal(t, int64(2), got.Version)

	active, err := svc.GetAllTasks(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDeleteTaskRemoteFailureRollsBack(t *testing.T) {
	local := memory.New()
	remote := memory.New()
	svc := service.New(local, remote, nil, service.Options{SyncEnabled: true, SyncOnWrite: true})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "survivor", UserID: "user-1"})
	require.NoError(t, err)

	remote.FailWith = errors.New("server down")
	err = svc.DeleteTask(ctx, task.ID)
	require.Error(t, err)

	var txErr *service.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.True(t, txErr.RolledBack)

	got, err := local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, got.Deleted(), "rollback must lift the tombstone")
	assert.Equal(t, int64(1), got.Version)

	active, err := svc.GetAllTasks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1, "a failed delete must leave the task visible")
	assert.Equal(t, task.ID, active[0].ID)
}

func TestUpdateTombstonedTaskLooksMissing(t *testing.T) {
	local := memory.New()
	svc := service.New(local, memory.New(), nil, service.Options{})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "gone", UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTask(ctx, task.ID))

	name := "necromancy"
	_, err = svc.UpdateTask(ctx, task.ID, service.UpdateTaskInput{Name: &name})
	assert.True(t, repo.IsNotFound(err))
}

func TestSyncDisabledTouchesNothingRemote(t *testing.T) {
	local := memory.New()
	remote := memory.New()
	svc := service.New(local, remote, nil, service.Options{SyncEnabled: false, SyncOnWrite: true})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, service.CreateTaskInput{Name: "local life", UserID: "user-1"})
	require.NoError(t, err)

	name := "still local"
	_, err = svc.UpdateTask(ctx, task.ID, service.UpdateTaskInput{Name: &name})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTask(ctx, task.ID))

	assert.Equal(t, 0, remote.Len())

	n, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
