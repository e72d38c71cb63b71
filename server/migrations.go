package server

// migrate runs database migrations
func (s *Server) migrate() error {
	migrations := []string{
		migrationTasks,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// The remote schema mirrors the client's tasks table, sync columns
// included. Deletions stay as tombstones here too so clients that were
// offline can still learn about them; a separate purge reclaims rows once
// every device has converged.
const migrationTasks = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    done BOOLEAN NOT NULL DEFAULT FALSE,
    alarm_time TIMESTAMPTZ,
    frequency TEXT NOT NULL DEFAULT 'single',
    alarm_interval INTEGER NOT NULL DEFAULT 0,
    user_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ,
    version BIGINT NOT NULL DEFAULT 1,
    sync_status TEXT NOT NULL DEFAULT 'synced',
    sync_error TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(sync_status);
`
