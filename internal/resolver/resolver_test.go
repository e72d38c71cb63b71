package resolver_test

import (
	"errors"
	"testing"
	"time"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflictPair() (model.Task, model.Task) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	local := model.NewTask("user-1", "local name")
	local.ID = "task-1"
	local.Version = 3
	local.UpdatedAt = base.Add(time.Hour)

	remote := local.Clone()
	remote.Name = "remote name"
	remote.Version = 4
	remote.UpdatedAt = base
	remote.SyncStatus = model.SyncStatusSynced

	return local, remote
}

func TestResolveUseLocal(t *testing.T) {
	local, remote := conflictPair()

	got, err := resolver.Resolve(local, remote, resolver.UseLocal)
	require.NoError(t, err)
	assert.Equal(t, "local name", got.Name)
	assert.Equal(t, int64(3), got.Version)
}

func TestResolveUseRemote(t *testing.T) {
	local, remote := conflictPair()

	got, err := resolver.Resolve(local, remote, resolver.UseRemote)
	require.NoError(t, err)
	assert.Equal(t, "remote name", got.Name)
	assert.Equal(t, int64(4), got.Version)
}

func TestResolveMerge(t *testing.T) {
	local, remote := conflictPair()

	// local has the later edit, remote has the higher version
	got, err := resolver.Resolve(local, remote, resolver.Merge)
	require.NoError(t, err)
	assert.Equal(t, "local name", got.Name, "later edit wins the fields")
	assert.Equal(t, int64(5), got.Version, "version must exceed both inputs")
	assert.Equal(t, model.SyncStatusPending, got.SyncStatus)
}

func TestResolveMergeRemoteLater(t *testing.T) {
	local, remote := conflictPair()
	remote.UpdatedAt = local.UpdatedAt.Add(time.Minute)

	got, err := resolver.Resolve(local, remote, resolver.Merge)
	require.NoError(t, err)
	assert.Equal(t, "remote name", got.Name)
	assert.Equal(t, int64(5), got.Version)
}

func TestResolveManual(t *testing.T) {
	local, remote := conflictPair()

	_, err := resolver.Resolve(local, remote, resolver.Manual)
	require.Error(t, err)

	var manual *resolver.ManualConflictError
	require.True(t, errors.As(err, &manual))
	assert.Equal(t, "local name", manual.Local.Name)
	assert.Equal(t, "remote name", manual.Remote.Name)
}

func TestResolveDoesNotMutateInputs(t *testing.T) {
	local, remote := conflictPair()

	got, err := resolver.Resolve(local, remote, resolver.Merge)
	require.NoError(t, err)

	got.Name = "changed after resolve"
	assert.Equal(t, "local name", local.Name)
	assert.Equal(t, "remote name", remote.Name)
}

func TestPickWinner(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name                  string
		localVer, remoteVer   int64
		localEdit, remoteEdit time.Time
		want                  resolver.Winner
	}{
		{"equal versions", 3, 3, base, base.Add(time.Hour), resolver.NoConflict},
		{"remote edited later", 3, 5, base, base.Add(time.Hour), resolver.RemoteWins},
		{"local edited later", 5, 3, base.Add(time.Hour), base, resolver.LocalWins},
		{"equal timestamps favor local", 2, 3, base, base, resolver.LocalWins},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := model.Task{ID: "t", Version: tt.localVer, UpdatedAt: tt.localEdit}
			remote := model.Task{ID: "t", Version: tt.remoteVer, UpdatedAt: tt.remoteEdit}
			assert.Equal(t, tt.want, resolver.PickWinner(local, remote))
		})
	}
}
