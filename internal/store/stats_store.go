package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/russross/meddler"
)

// StatsStore maintains the table_stats cache so readers get headline numbers
// in O(1) instead of running MIN/MAX/COUNT over the hot tables.
type StatsStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStatsStore creates a StatsStore.
func NewStatsStore(db *sql.DB, log *logger.Logger) *StatsStore {
	return &StatsStore{db: db, log: log}
}

// Get returns the stats row for a table, or nil if nothing was recorded yet.
func (s *StatsStore) Get(tableName string) (*StatsRow, error) {
	var row StatsRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM table_stats WHERE table_name = ?`, tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stats for %s: %w", tableName, err)
	}
	return &row, nil
}

// Bump records a committed insert batch: the running min widens down, the max
// widens up and the count grows by the number of inserted rows.
func (s *StatsStore) Bump(tableName string, minInserted, maxInserted, count uint64) error {
	if count == 0 {
		return nil
	}

	_, err := s.db.Exec(`
		INSERT INTO table_stats (table_name, min_value, max_value, total_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (table_name) DO UPDATE SET
			min_value = MIN(COALESCE(table_stats.min_value, excluded.min_value), excluded.min_value),
			max_value = MAX(COALESCE(table_stats.max_value, excluded.max_value), excluded.max_value),
			total_count = table_stats.total_count + excluded.total_count
	`, tableName, minInserted, maxInserted, count)
	if err != nil {
		return fmt.Errorf("failed to bump stats for %s: %w", tableName, err)
	}

	return nil
}

// BumpFinalized widens the finalized min/max and grows the finalized count.
func (s *StatsStore) BumpFinalized(tableName string, minFinalized, maxFinalized, count uint64) error {
	if count == 0 {
		return nil
	}

	_, err := s.db.Exec(`
		INSERT INTO table_stats (table_name, total_count, finalized_count, min_finalized, max_finalized)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT (table_name) DO UPDATE SET
			finalized_count = table_stats.finalized_count + excluded.finalized_count,
			min_finalized = MIN(COALESCE(table_stats.min_finalized, excluded.min_finalized), excluded.min_finalized),
			max_finalized = MAX(COALESCE(table_stats.max_finalized, excluded.max_finalized), excluded.max_finalized)
	`, tableName, count, minFinalized, maxFinalized)
	if err != nil {
		return fmt.Errorf("failed to bump finalized stats for %s: %w", tableName, err)
	}

	return nil
}

// DecrementTx reduces the row count inside an open transaction, used when the
// reorg handler moves a row to the archive.
func (s *StatsStore) DecrementTx(tx *sql.Tx, tableName string, count uint64) error {
	_, err := tx.Exec(`
		UPDATE table_stats SET total_count = MAX(total_count - ?, 0) WHERE table_name = ?
	`, count, tableName)
	if err != nil {
		return fmt.Errorf("failed to decrement stats for %s: %w", tableName, err)
	}
	return nil
}
