package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/russross/meddler"
)

// FinalityStore persists per-block finality rows. time_to_finality_sec is
// write-once-non-null: a stored value is only ever replaced when it is null
// and the incoming one is not, preserving the earliest accurate number.
type FinalityStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewFinalityStore creates a FinalityStore.
func NewFinalityStore(db *sql.DB, log *logger.Logger) *FinalityStore {
	return &FinalityStore{db: db, log: log}
}

// UpsertRows bulk-inserts finality rows and reports how many were new.
// Conflicting rows only have their time_to_finality_sec filled when the
// stored value is null; replays therefore report zero new rows.
func (s *FinalityStore) UpsertRows(rows []*FinalityRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	inPlaceholders := make([]string, len(rows))
	valuePlaceholders := make([]string, len(rows))
	inArgs := make([]any, len(rows))
	args := make([]any, 0, len(rows)*4)
	for i, row := range rows {
		inPlaceholders[i] = "?"
		valuePlaceholders[i] = "(?, ?, ?, ?)"
		inArgs[i] = row.BlockNumber
		args = append(args, row.BlockNumber, row.MilestoneID, row.FinalizedAt, row.TimeToFinalitySec)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing int
	if err := tx.QueryRow(fmt.Sprintf(
		`SELECT COUNT(*) FROM block_finality WHERE block_number IN (%s)`,
		strings.Join(inPlaceholders, ","),
	), inArgs...).Scan(&existing); err != nil {
		return 0, fmt.Errorf("failed to count existing finality rows: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO block_finality (block_number, milestone_id, finalized_at, time_to_finality_sec)
		VALUES %s
		ON CONFLICT (block_number) DO UPDATE SET
			time_to_finality_sec = excluded.time_to_finality_sec
		WHERE block_finality.time_to_finality_sec IS NULL
		  AND excluded.time_to_finality_sec IS NOT NULL
	`, strings.Join(valuePlaceholders, ", "))

	if _, err := tx.Exec(query, args...); err != nil {
		return 0, fmt.Errorf("failed to upsert finality rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(rows) - existing, nil
}

// GetByBlocks returns the finality rows for the given block numbers via an
// IN-probe on the primary key.
func (s *FinalityStore) GetByBlocks(blockNums []uint64) ([]*FinalityRow, error) {
	if len(blockNums) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(blockNums)), ",")
	args := make([]any, len(blockNums))
	for i, n := range blockNums {
		args[i] = n
	}

	var rows []*FinalityRow
	err := meddler.QueryAll(s.db, &rows,
		fmt.Sprintf(`SELECT * FROM block_finality WHERE block_number IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query finality rows: %w", err)
	}

	return rows, nil
}

// ReconcileNewBlocks joins freshly inserted blocks against pre-existing
// finality records: the blocks rows gain their finality tuple, and any null
// time_to_finality_sec in block_finality is filled now that the block's
// timestamp is known. Both statements run in one transaction.
func (s *FinalityStore) ReconcileNewBlocks(blockNums []uint64) error {
	if len(blockNums) == 0 {
		return nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(blockNums)), ",")
	args := make([]any, len(blockNums))
	for i, n := range blockNums {
		args[i] = n
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(fmt.Sprintf(`
		UPDATE blocks SET
			finalized = 1,
			finalized_at = bf.finalized_at,
			milestone_id = bf.milestone_id,
			time_to_finality_sec = CAST(bf.finalized_at AS REAL) - CAST(blocks.timestamp AS REAL)
		FROM block_finality AS bf
		WHERE bf.block_number = blocks.block_number
		  AND blocks.block_number IN (%s)
	`, placeholders), args...); err != nil {
		return fmt.Errorf("failed to reconcile blocks against finality records: %w", err)
	}

	if _, err := tx.Exec(fmt.Sprintf(`
		UPDATE block_finality SET
			time_to_finality_sec = CAST(block_finality.finalized_at AS REAL) - CAST(b.timestamp AS REAL)
		FROM blocks AS b
		WHERE b.block_number = block_finality.block_number
		  AND block_finality.time_to_finality_sec IS NULL
		  AND block_finality.block_number IN (%s)
	`, placeholders), args...); err != nil {
		return fmt.Errorf("failed to fill finality durations: %w", err)
	}

	return tx.Commit()
}
