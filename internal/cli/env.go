package cli

import (
	"fmt"

	"github.com/existflow/ironsync/internal/daemon"
	"github.com/existflow/ironsync/internal/db"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/queue"
	"github.com/existflow/ironsync/internal/repo/remote"
	"github.com/existflow/ironsync/internal/repo/sqlite"
	"github.com/existflow/ironsync/internal/service"
)

// env bundles the wired-up stores every subcommand needs. Build one with
// openEnv at the top of a RunE and defer Close.
type env struct {
	db      *db.DB
	local   *sqlite.Repository
	remote  *remote.Repository
	queue   *queue.Queue
	service *service.TaskService
}

func openEnv() (*env, error) {
	var (
		database *db.DB
		err      error
	)
	if cfg.DatabasePath != "" {
		database, err = db.Open(cfg.DatabasePath)
	} else {
		database, err = db.OpenDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	local := sqlite.New(database)
	rem := remote.New(cfg.ServerURL, cfg.Token)
	q := queue.New(database)

	svc := service.New(local, rem, q, service.Options{
		SyncEnabled: cfg.SyncEnabled,
		SyncOnWrite: cfg.SyncOnWrite,
	})

	return &env{
		db:      database,
		local:   local,
		remote:  rem,
		queue:   q,
		service: svc,
	}, nil
}

// newDaemon builds a drain daemon over the environment's stores
func (e *env) newDaemon() *daemon.Daemon {
	return daemon.New(e.local, e.remote, e.queue, daemon.Config{
		UserID:     cfg.UserID,
		Interval:   cfg.SyncInterval,
		MaxRetries: cfg.MaxRetries,
	})
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		logger.Warn("Failed to close database", logger.F("error", err))
	}
}
