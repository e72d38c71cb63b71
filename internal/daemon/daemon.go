// Package daemon runs background synchronization: draining the operation
// queue against the remote store and periodically reconciling the two sides.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/queue"
	"github.com/existflow/ironsync/internal/repo"
)

// State is the daemon lifecycle state
type State int

const (
	// Stopped means no background loop is scheduled
	Stopped State = iota
	// Running means the interval loop is live
	Running
)

// Config tunes the daemon
type Config struct {
	// UserID scopes reconciliation sweeps
	UserID string

	// Interval between automatic queue drains (default 30s)
	Interval time.Duration

	// MaxRetries is how many times a failed operation is retried after its
	// first attempt before the owning task is marked errored and the
	// operation dropped (default 3)
	MaxRetries int

	// RetryBackoffMax, when non-zero, wraps each remote push in an
	// exponential backoff for transient transport errors, bounded by this
	// duration. Zero means one attempt per drain pass.
	RetryBackoffMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	return c
}

// errStaleUpdate marks a queued update whose base version no longer matches
// the remote copy. The drain converts it into a conflict on the local task
// instead of retrying.
var errStaleUpdate = errors.New("queued update based on stale version")

// Daemon drains the operation queue and reconciles local and remote stores.
// Construct one per process and wire it explicitly; there is no package
// level instance.
type Daemon struct {
	local  repo.TaskRepository
	remote repo.TaskRepository
	queue  *queue.Queue
	cfg    Config

	mu       sync.Mutex
	state    State
	draining bool
	stopCh   chan struct{}
	done     chan struct{}
	restored <-chan struct{}
}

// New creates a daemon in the Stopped state
func New(local, remote repo.TaskRepository, q *queue.Queue, cfg Config) *Daemon {
	return &Daemon{
		local:  local,
		remote: remote,
		queue:  q,
		cfg:    cfg.withDefaults(),
	}
}

// SetConnectivityNotifier subscribes the daemon to connectivity-restored
// events; each event triggers an immediate drain attempt. Must be called
// before Start.
func (d *Daemon) SetConnectivityNotifier(restored <-chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restored = restored
}

// State returns the current lifecycle state
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start transitions Stopped -> Running: one reconciliation sweep, then the
// interval drain loop. Returns an error if already running.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state == Running {
		d.mu.Unlock()
		return fmt.Errorf("sync daemon already running")
	}
	d.state = Running
	d.stopCh = make(chan struct{})
	d.done = make(chan struct{})
	restored := d.restored
	d.mu.Unlock()

	logger.Info("Sync daemon starting", logger.F("interval", d.cfg.Interval))

	// Full sweep on start catches everything missed while stopped.
	if _, err := d.FullSync(ctx); err != nil {
		logger.Warn("Initial reconciliation failed", logger.F("error", err))
	}

	go d.loop(ctx, restored)
	return nil
}

// Stop transitions Running -> Stopped, halting future scheduling. An
// operation already in flight completes or fails on its own.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if d.state != Running {
		d.mu.Unlock()
		return
	}
	d.state = Stopped
	close(d.stopCh)
	done := d.done
	d.mu.Unlock()

	<-done
	logger.Info("Sync daemon stopped")
}

func (d *Daemon) loop(ctx context.Context, restored <-chan struct{}) {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DrainOnce(ctx); err != nil {
				logger.Warn("Queue drain failed", logger.F("error", err))
			}
		case _, ok := <-restored:
			if !ok {
				restored = nil
				continue
			}
			logger.Info("Connectivity restored, draining queue")
			if err := d.DrainOnce(ctx); err != nil {
				logger.Warn("Queue drain failed", logger.F("error", err))
			}
		}
	}
}

// DrainOnce processes queued operations oldest-first until the queue is
// empty or the head operation hits a retryable failure. A drain already in
// progress makes this a no-op, so an early tick never overlaps a slow
// drain.
func (d *Daemon) DrainOnce(ctx context.Context) error {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return nil
	}
	d.draining = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.draining = false
		d.mu.Unlock()
	}()

	for {
		op, err := d.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if op == nil {
			return nil
		}

		err = d.apply(ctx, op)
		switch {
		case err == nil:
			if err := d.queue.Remove(ctx, op.ID); err != nil {
				return err
			}

		case errors.Is(err, errStaleUpdate):
			// Not retryable: the edit raced another device. Flag the
			// task and let the next sweep resolve it.
			d.markConflict(ctx, op.TaskID)
			if err := d.queue.Remove(ctx, op.ID); err != nil {
				return err
			}
			logger.Warn("Queued update was stale, task flagged for reconciliation",
				logger.F("task", op.TaskID))

		default:
			// The operation survives MaxRetries failures after the first
			// attempt and is dropped on the one after that.
			if op.RetryCount >= d.cfg.MaxRetries {
				logger.Error("Operation exhausted retries",
					logger.F("op", op.ID),
					logger.F("task", op.TaskID),
					logger.F("retries", op.RetryCount),
					logger.F("error", err))
				if mErr := d.local.MarkError(ctx, op.TaskID, err.Error()); mErr != nil {
					logger.Error("Failed to record sync error on task",
						logger.F("task", op.TaskID), logger.F("error", mErr))
				}
				if rErr := d.queue.Remove(ctx, op.ID); rErr != nil {
					return rErr
				}
				continue
			}
			if rErr := d.queue.Retry(ctx, op.ID, err.Error()); rErr != nil {
				return rErr
			}
			logger.Warn("Operation failed, will retry",
				logger.F("op", op.ID),
				logger.F("retries", op.RetryCount+1),
				logger.F("error", err))
			// The failed operation stays at the head; applying later
			// entries first would break cross-queue ordering.
			return nil
		}
	}
}

// apply pushes one operation to the remote store and updates local sync
// metadata on success. Every Kind is handled; an unknown one is a bug.
func (d *Daemon) apply(ctx context.Context, op *queue.Operation) error {
	switch op.Kind {
	case queue.KindCreate:
		if err := d.push(ctx, func() error {
			_, err := d.remote.Create(ctx, syncedCopy(op.Task))
			return err
		}); err != nil {
			return err
		}
		return d.local.MarkSynced(ctx, op.TaskID, op.Task.Version)

	case queue.KindUpdate:
		remoteTask, err := d.remote.GetByID(ctx, op.TaskID)
		if repo.IsNotFound(err) {
			// The remote never saw this task; the create that should have
			// preceded this update was lost. Push the full record instead.
			if err := d.push(ctx, func() error {
				_, err := d.remote.Create(ctx, syncedCopy(op.Task))
				return err
			}); err != nil {
				return err
			}
			return d.local.MarkSynced(ctx, op.TaskID, op.Task.Version)
		}
		if err != nil {
			return err
		}
		if op.PrevVersion != nil && remoteTask.Version != *op.PrevVersion {
			return errStaleUpdate
		}
		synced := model.SyncStatusSynced
		changes := model.ChangesFromTask(op.Task)
		changes.SyncStatus = &synced
		if err := d.push(ctx, func() error {
			_, err := d.remote.Update(ctx, op.TaskID, changes)
			return err
		}); err != nil {
			return err
		}
		return d.local.MarkSynced(ctx, op.TaskID, op.Task.Version)

	case queue.KindDelete:
		err := d.push(ctx, func() error {
			return d.remote.Delete(ctx, op.TaskID)
		})
		if err != nil && !repo.IsNotFound(err) {
			return err
		}
		return nil

	default:
		return fmt.Errorf("unhandled operation kind %q", op.Kind)
	}
}

// syncedCopy is what a create pushes: the remote row is synced by
// definition the moment the write lands, while the queued payload still
// carries the local pending status.
func syncedCopy(t model.Task) model.Task {
	c := t.Clone()
	c.SyncStatus = model.SyncStatusSynced
	c.SyncError = nil
	return c
}

// push runs a remote write, retrying transient storage failures with
// exponential backoff when configured. Anything that is not a StorageError
// stops immediately.
func (d *Daemon) push(ctx context.Context, fn func() error) error {
	if d.cfg.RetryBackoffMax == 0 {
		return fn()
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = d.cfg.RetryBackoffMax
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var se *repo.StorageError
		if errors.As(err, &se) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func (d *Daemon) markConflict(ctx context.Context, taskID string) {
	t, err := d.local.GetByID(ctx, taskID)
	if err != nil {
		logger.Error("Failed to load task for conflict flag",
			logger.F("task", taskID), logger.F("error", err))
		return
	}
	conflict := model.SyncStatusConflict
	// Preserve updated_at: flagging the conflict is bookkeeping, not an
	// edit, and must not skew the resolver's tie-break.
	ch := model.TaskChanges{SyncStatus: &conflict, UpdatedAt: &t.UpdatedAt}
	if _, err := d.local.Update(ctx, taskID, ch); err != nil {
		logger.Error("Failed to flag task conflict",
			logger.F("task", taskID), logger.F("error", err))
	}
}
