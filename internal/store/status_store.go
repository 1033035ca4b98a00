package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/russross/meddler"
)

// StatusStore persists worker status snapshots for cross-process reads. The
// in-process registry is authoritative; these rows are a periodic mirror.
type StatusStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStatusStore creates a StatusStore.
func NewStatusStore(db *sql.DB, log *logger.Logger) *StatusStore {
	return &StatusStore{db: db, log: log}
}

// Upsert writes one worker's status row.
func (s *StatusStore) Upsert(workerName, state string, lastError *string, lastErrorAt *int64) error {
	_, err := s.db.Exec(`
		INSERT INTO worker_status (worker_name, state, last_error, last_error_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (worker_name) DO UPDATE SET
			state = excluded.state,
			last_error = excluded.last_error,
			last_error_at = excluded.last_error_at,
			updated_at = excluded.updated_at
	`, workerName, state, lastError, lastErrorAt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert worker status for %s: %w", workerName, err)
	}
	return nil
}

// All returns every stored worker status row.
func (s *StatusStore) All() ([]*WorkerStatusRow, error) {
	var rows []*WorkerStatusRow
	if err := meddler.QueryAll(s.db, &rows, `SELECT * FROM worker_status ORDER BY worker_name`); err != nil {
		return nil, fmt.Errorf("failed to query worker status: %w", err)
	}
	return rows, nil
}
