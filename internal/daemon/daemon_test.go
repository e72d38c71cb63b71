package daemon_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/existflow/ironsync/internal/daemon"
	"github.com/existflow/ironsync/internal/db"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/queue"
	"github.com/existflow/ironsync/internal/repo"
	"github.com/existflow/ironsync/internal/repo/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	local  *memory.Repository
	remote *memory.Repository
	queue  *queue.Queue
	daemon *daemon.Daemon
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	local := memory.New()
	remote := memory.New()
	q := queue.New(database)
	d := daemon.New(local, remote, q, daemon.Config{
		UserID:     "user-1",
		Interval:   time.Hour,
		MaxRetries: 3,
	})
	return &fixture{local: local, remote: remote, queue: q, daemon: d}
}

func (f *fixture) enqueue(t *testing.T, kind queue.Kind, task model.Task, prevVersion *int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.queue.Enqueue(context.Background(), queue.Operation{
		Kind:        kind,
		TaskID:      task.ID,
		Task:        task,
		PrevVersion: prevVersion,
		CreatedAt:   at,
	}))
}

func (f *fixture) queueLen(t *testing.T) int {
	t.Helper()
	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	return n
}

func TestDrainAppliesOperationsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	task := model.NewTask("user-1", "name A")
	f.local.Put(task)

	renamed := task.Clone()
	renamed.Name = "name B"
	renamed.Version = 2

	f.enqueue(t, queue.KindCreate, task, nil, base)
	prev := int64(1)
	f.enqueue(t, queue.KindUpdate, renamed, &prev, base.Add(time.Second))

	require.NoError(t, f.daemon.DrainOnce(ctx))
	assert.Equal(t, 0, f.queueLen(t))

	got, err := f.remote.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "name B", got.Name, "the later edit must land last")
	assert.Equal(t, int64(2), got.Version)

	localCopy, err := f.local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, localCopy.SyncStatus)
}

func TestDrainOfflineCreateThenReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "written offline")
	f.local.Put(task)
	f.enqueue(t, queue.KindCreate, task, nil, time.Now().UTC())

	// Server unreachable: the operation stays queued
	f.remote.FailWith = errors.New("connection refused")
	require.NoError(t, f.daemon.DrainOnce(ctx))
	assert.Equal(t, 1, f.queueLen(t))

	// Connectivity returns before retries run out
	f.remote.FailWith = nil
	require.NoError(t, f.daemon.DrainOnce(ctx))
	assert.Equal(t, 0, f.queueLen(t))

	got, err := f.remote.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "written offline", got.Name)
	assert.Equal(t, model.SyncStatusSynced, got.SyncStatus, "the pushed record must not carry pending")
}

func TestDrainRetryExhaustionDropsOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "unlucky")
	f.local.Put(task)
	f.enqueue(t, queue.KindCreate, task, nil, time.Now().UTC())

	f.remote.FailWith = errors.New("500 internal server error")

	// MaxRetries is 3: the operation survives three failed drains with a
	// recorded failure each, the fourth gives up.
	for i := 0; i < 3; i++ {
		require.NoError(t, f.daemon.DrainOnce(ctx))
		assert.Equal(t, 1, f.queueLen(t))
	}
	op, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, 3, op.RetryCount)
	require.NotNil(t, op.LastError)

	require.NoError(t, f.daemon.DrainOnce(ctx))
	assert.Equal(t, 0, f.queueLen(t), "exhausted operation must leave the queue")

	got, err := f.local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusError, got.SyncStatus)
	require.NotNil(t, got.SyncError)
}

func TestDrainStopsAtFailedHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := model.NewTask("user-1", "first")
	second := model.NewTask("user-1", "second")
	f.local.Put(first)
	f.local.Put(second)
	f.enqueue(t, queue.KindCreate, first, nil, base)
	f.enqueue(t, queue.KindCreate, second, nil, base.Add(time.Second))

	f.remote.FailWith = errors.New("connection refused")
	require.NoError(t, f.daemon.DrainOnce(ctx))

	// Both stay queued: applying the second before the first would break
	// cross-task ordering.
	assert.Equal(t, 2, f.queueLen(t))
	assert.Equal(t, 0, f.remote.Len())
}

func TestDrainStaleUpdateFlagsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "contested")
	task.Version = 2
	f.local.Put(task)

	// Another device already moved the remote copy past our base version
	remoteCopy := task.Clone()
	remoteCopy.Name = "their edit"
	remoteCopy.Version = 3
	f.remote.Put(remoteCopy)

	prev := int64(1)
	f.enqueue(t, queue.KindUpdate, task, &prev, time.Now().UTC())

	require.NoError(t, f.daemon.DrainOnce(ctx))

	assert.Equal(t, 0, f.queueLen(t), "stale update is dropped, not retried")

	got, err := f.local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusConflict, got.SyncStatus)

	remoteGot, err := f.remote.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "their edit", remoteGot.Name, "the remote copy stays untouched")
}

func TestDrainUpdateForMissingRemoteCreatesIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "resurrected")
	task.Version = 2
	f.local.Put(task)

	prev := int64(1)
	f.enqueue(t, queue.KindUpdate, task, &prev, time.Now().UTC())

	require.NoError(t, f.daemon.DrainOnce(ctx))
	assert.Equal(t, 0, f.queueLen(t))

	got, err := f.remote.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestDrainDeleteToleratesMissingRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "already gone")
	f.enqueue(t, queue.KindDelete, task, nil, time.Now().UTC())

	require.NoError(t, f.daemon.DrainOnce(ctx))
	assert.Equal(t, 0, f.queueLen(t))
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, daemon.Stopped, f.daemon.State())

	require.NoError(t, f.daemon.Start(ctx))
	assert.Equal(t, daemon.Running, f.daemon.State())

	assert.Error(t, f.daemon.Start(ctx), "second start must be rejected")

	f.daemon.Stop()
	assert.Equal(t, daemon.Stopped, f.daemon.State())

	// Stop on a stopped daemon is a no-op
	f.daemon.Stop()

	require.NoError(t, f.daemon.Start(ctx))
	f.daemon.Stop()
}

func TestFullSyncPullsUnknownRemoteTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remoteTask := model.NewTask("user-1", "from another device")
	remoteTask.SyncStatus = model.SyncStatusSynced
	f.remote.Put(remoteTask)

	result, err := f.daemon.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PulledCreates)

	got, err := f.local.GetByID(ctx, remoteTask.ID)
	require.NoError(t, err)
	assert.Equal(t, "from another device", got.Name)
	assert.Equal(t, model.SyncStatusSynced, got.SyncStatus)
}

func TestFullSyncQueuesPendingLocalTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "never pushed")
	f.local.Put(task)

	result, err := f.daemon.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PushedCreates)

	op, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, queue.KindCreate, op.Kind)
	assert.Equal(t, task.ID, op.TaskID)

	// The follow-up drain completes the push
	require.NoError(t, f.daemon.DrainOnce(ctx))
	_, err = f.remote.GetByID(ctx, task.ID)
	require.NoError(t, err)
}

func TestFullSyncAppliesRemoteTombstone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "deleted elsewhere")
	task.SyncStatus = model.SyncStatusSynced
	f.local.Put(task)

	deletedAt := time.Now().UTC()
	remoteCopy := task.Clone()
	remoteCopy.DeletedAt = &deletedAt
	remoteCopy.Version = 2
	f.remote.Put(remoteCopy)

	result, err := f.daemon.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Tombstoned)

	got, err := f.local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())

	active, err := f.local.GetAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestFullSyncPurgesRemotelyRemovedTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "purged elsewhere")
	task.SyncStatus = model.SyncStatusSynced
	f.local.Put(task)

	result, err := f.daemon.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)

	_, err = f.local.GetByID(ctx, task.ID)
	assert.True(t, repo.IsNotFound(err))
}

func TestFullSyncRemoteWinsOverwritesLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	task := model.NewTask("user-1", "local words")
	task.SyncStatus = model.SyncStatusSynced
	task.UpdatedAt = base
	f.local.Put(task)

	remoteCopy := task.Clone()
	remoteCopy.Name = "remote words"
	remoteCopy.Version = 2
	remoteCopy.UpdatedAt = base.Add(time.Minute)
	f.remote.Put(remoteCopy)

	result, err := f.daemon.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Overwritten)

	got, err := f.local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote words", got.Name)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, base.Add(time.Minute), got.UpdatedAt, "the winner's edit time must survive")
	assert.Equal(t, model.SyncStatusSynced, got.SyncStatus)
}

func TestFullSyncLocalWinsQueuesUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	task := model.NewTask("user-1", "my newer words")
	task.Version = 3
	task.SyncStatus = model.SyncStatusPending
	task.UpdatedAt = base.Add(time.Minute)
	f.local.Put(task)

	remoteCopy := task.Clone()
	remoteCopy.Name = "older remote words"
	remoteCopy.Version = 2
	remoteCopy.UpdatedAt = base
	f.remote.Put(remoteCopy)

	result, err := f.daemon.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PushedUpdates)

	op, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, queue.KindUpdate, op.Kind)
	require.NotNil(t, op.PrevVersion)
	assert.Equal(t, int64(2), *op.PrevVersion, "the queued update must be based on the remote's current version")

	require.NoError(t, f.daemon.DrainOnce(ctx))
	got, err := f.remote.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "my newer words", got.Name)
}

func TestFullSyncEqualVersionsMarksSynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.NewTask("user-1", "settled")
	task.Version = 2
	f.local.Put(task) // pending
	f.remote.Put(task)

	result, err := f.daemon.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Overwritten)
	assert.Equal(t, 0, result.PushedUpdates)

	got, err := f.local.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, got.SyncStatus)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := model.NewTask("user-1", "pending one")
	f.local.Put(pending)
	errored := model.NewTask("user-1", "errored one")
	errored.SyncStatus = model.SyncStatusError
	f.local.Put(errored)
	f.enqueue(t, queue.KindCreate, pending, nil, time.Now().UTC())

	stats, err := f.daemon.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, daemon.Stopped, stats.State)
	assert.Equal(t, 1, stats.QueueLen)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 0, stats.Conflicts)
	assert.Equal(t, 1, stats.Errors)
}
