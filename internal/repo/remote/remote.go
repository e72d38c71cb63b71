// Package remote implements the task repository against the ironsync HTTP
// server. Every method is one request; the server's own timeout and retry
// behavior is out of scope here, only the 30s client timeout bounds calls.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/repo"
)

// Repository is the remote TaskRepository over HTTP
type Repository struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a repository for the given server. The token is sent as a
// bearer credential on every request.
func New(baseURL, token string) *Repository {
	return &Repository{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ repo.TaskRepository = (*Repository)(nil)

type errorResponse struct {
	Error string `json:"error"`
}

// do issues one request and decodes a JSON body into out when non-nil.
// Transport failures become StorageError, 404 becomes NotFoundError and 409
// becomes VersionError so callers can treat both stores uniformly.
func (r *Repository) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &repo.StorageError{Op: "remote." + method + " " + path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &repo.NotFoundError{ID: idFromPath(path)}
	case resp.StatusCode == http.StatusConflict:
		var ve struct {
			Stored int64 `json:"stored_version"`
			Given  int64 `json:"given_version"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&ve)
		return &repo.VersionError{ID: idFromPath(path), Stored: ve.Stored, Given: ve.Given}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var er errorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &er) != nil || er.Error == "" {
			er.Error = string(raw)
		}
		return &repo.StorageError{
			Op:  "remote." + method + " " + path,
			Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, er.Error),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &repo.StorageError{Op: "remote." + method + " " + path, Err: err}
		}
	}
	return nil
}

func idFromPath(path string) string {
	path = strings.TrimSuffix(path, "/synced")
	path = strings.TrimSuffix(path, "/error")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

type taskListResponse struct {
	Tasks []model.Task `json:"tasks"`
}

// GetAll implements repo.TaskRepository
func (r *Repository) GetAll(ctx context.Context, userID string) ([]model.Task, error) {
	var out taskListResponse
	path := "/api/v1/tasks?user_id=" + url.QueryEscape(userID)
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// GetByID implements repo.TaskRepository
func (r *Repository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	var out model.Task
	if err := r.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByStatus implements repo.TaskRepository
func (r *Repository) GetByStatus(ctx context.Context, status model.SyncStatus) ([]model.Task, error) {
	var out taskListResponse
	path := "/api/v1/tasks/status/" + url.PathEscape(string(status))
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// Create implements repo.TaskRepository. The server upserts by id, which
// keeps queued creates idempotent under at-least-once delivery.
func (r *Repository) Create(ctx context.Context, t model.Task) (*model.Task, error) {
	var out model.Task
	if err := r.do(ctx, http.MethodPost, "/api/v1/tasks", t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update implements repo.TaskRepository
func (r *Repository) Update(ctx context.Context, id string, changes model.TaskChanges) (*model.Task, error) {
	var out model.Task
	if err := r.do(ctx, http.MethodPut, "/api/v1/tasks/"+url.PathEscape(id), changes, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete implements repo.TaskRepository. This is the physical purge path.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(id), nil, nil)
}

// BulkCreate implements repo.TaskRepository, one request per item so a bad
// record cannot sink the batch
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
	body := map[string]int64{"version": version}
	path := "/api/v1/tasks/" + url.PathEscape(id) + "/synced"
	return r.do(ctx, http.MethodPost, path, body, nil)
}

// MarkError implements repo.TaskRepository
func (r *Repository) MarkError(ctx context.Context, id, message string) error {
	body := map[string]string{"message": message}
	path := "/api/v1/tasks/" + url.PathEscape(id) + "/error"
	return r.do(ctx, http.MethodPost, path, body, nil)
}
