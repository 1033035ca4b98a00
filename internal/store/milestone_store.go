package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/russross/meddler"
)

// MilestoneStore persists milestone rows. Milestones are immutable after
// insert; re-inserts are no-ops.
type MilestoneStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewMilestoneStore creates a MilestoneStore.
func NewMilestoneStore(db *sql.DB, log *logger.Logger) *MilestoneStore {
	return &MilestoneStore{db: db, log: log}
}

// Insert stores a milestone idempotently and reports whether a new row was
// written.
func (s *MilestoneStore) Insert(row *MilestoneRow) (bool, error) {
	result, err := s.db.Exec(`
		INSERT INTO milestones (sequence_id, milestone_id, start_block, end_block, hash, proposer, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sequence_id) DO NOTHING
	`, row.SequenceID, row.MilestoneID, row.StartBlock, row.EndBlock, row.Hash.Hex(), row.Proposer, row.Timestamp)
	if err != nil {
		return false, fmt.Errorf("failed to insert milestone %d: %w", row.SequenceID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count inserted milestones: %w", err)
	}

	return inserted > 0, nil
}

// Get returns the milestone with the given sequence id, or nil if absent.
func (s *MilestoneStore) Get(seqID uint64) (*MilestoneRow, error) {
	var row MilestoneRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM milestones WHERE sequence_id = ?`, seqID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query milestone %d: %w", seqID, err)
	}
	return &row, nil
}

// Exists reports whether the milestone with the given sequence id is stored.
func (s *MilestoneStore) Exists(seqID uint64) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM milestones WHERE sequence_id = ?`, seqID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe milestone %d: %w", seqID, err)
	}
	return true, nil
}

// GetHighest returns the stored milestone with the greatest sequence id, or nil.
func (s *MilestoneStore) GetHighest() (*MilestoneRow, error) {
	var row MilestoneRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM milestones ORDER BY sequence_id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query highest milestone: %w", err)
	}
	return &row, nil
}

// GetLowest returns the stored milestone with the smallest sequence id, or nil.
func (s *MilestoneStore) GetLowest() (*MilestoneRow, error) {
	var row MilestoneRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM milestones ORDER BY sequence_id ASC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lowest milestone: %w", err)
	}
	return &row, nil
}
