package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/repo"
	"github.com/existflow/ironsync/internal/repo/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAllSendsAuthAndUser(t *testing.T) {
	var gotAuth, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.URL.Query().Get("user_id")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tasks": []model.Task{{ID: "t1", Name: "from server", UserID: "user-1"}},
		})
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "secret-token")
	tasks, err := r.GetAll(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "from server", tasks[0].Name)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "user-1", gotUser)
}

func TestGetByIDNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "task not found"})
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "")
	_, err := r.GetByID(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, repo.IsNotFound(err))

	var nf *repo.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ID)
}

func TestCreateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/tasks", r.URL.Path)

		var in model.Task
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.SyncStatus = model.SyncStatusSynced
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "")
	task := model.NewTask("user-1", "round trip")
	stored, err := r.Create(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)
	assert.Equal(t, model.SyncStatusSynced, stored.SyncStatus)
}

func TestUpdateVersionConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"stored_version": 7,
			"given_version":  3,
		})
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "")
	v3 := int64(3)
	_, err := r.Update(context.Background(), "t1", model.TaskChanges{Version: &v3})
	require.Error(t, err)

	var verr *repo.VersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "t1", verr.ID)
	assert.Equal(t, int64(7), verr.Stored)
	assert.Equal(t, int64(3), verr.Given)
}

func TestServerErrorBecomesStorageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "database unavailable"})
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "")
	_, err := r.GetByID(context.Background(), "t1")
	require.Error(t, err)

	var se *repo.StorageError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "500")
	assert.Contains(t, se.Error(), "database unavailable")
}

func TestUnreachableServerBecomesStorageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	r := remote.New(srv.URL, "")
	_, err := r.GetByID(context.Background(), "t1")
	require.Error(t, err)

	var se *repo.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestMarkSyncedPostsVersion(t *testing.T) {
	var gotPath string
	var gotBody map[string]int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "")
	require.NoError(t, r.MarkSynced(context.Background(), "t1", 5))
	assert.Equal(t, "/api/v1/tasks/t1/synced", gotPath)
	assert.Equal(t, int64(5), gotBody["version"])
}

func TestDeleteTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "")
	assert.NoError(t, r.Delete(context.Background(), "t1"))
}

func TestBulkCreatePartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in model.Task
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Name == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "name rejected"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "")
	good := model.NewTask("user-1", "good")
	bad := model.NewTask("user-1", "bad")

	created, failed := r.BulkCreate(context.Background(), []model.Task{good, bad})
	require.Len(t, created, 1)
	assert.Equal(t, "good", created[0].Name)
	require.Len(t, failed, 1)
	assert.Equal(t, bad.ID, failed[0].ID)
}

func TestTimestampsSurviveTheWire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in model.Task
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	r := remote.New(srv.URL, "")
	task := model.NewTask("user-1", "timed")
	task.UpdatedAt = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	stored, err := r.Create(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, task.UpdatedAt.Equal(stored.UpdatedAt), "conflict tie-breaks depend on exact timestamps")
}
