package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/russross/meddler"
)

// blockColumns is the insert column list for the blocks table, kept in one
// place so the multi-row insert and the row struct cannot drift.
var blockColumns = []string{
	"block_number", "timestamp", "block_hash", "parent_hash",
	"gas_used", "gas_limit", "tx_count", "base_fee_gwei",
	"min_priority_fee_gwei", "max_priority_fee_gwei", "median_priority_fee_gwei",
	"avg_priority_fee_gwei", "total_priority_fee_gwei",
	"block_time_sec", "mgas_per_sec", "tps",
	"finalized", "finalized_at", "milestone_id", "time_to_finality_sec",
}

// BlockStore persists block rows. Both ingestion paths insert with
// ON CONFLICT DO NOTHING: the live path is authoritative and backfillers must
// never overwrite it.
type BlockStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewBlockStore creates a BlockStore.
func NewBlockStore(db *sql.DB, log *logger.Logger) *BlockStore {
	return &BlockStore{db: db, log: log}
}

// InsertBlocks inserts rows in a single parameterised multi-row statement and
// returns the number of rows actually inserted (conflicts are skipped).
func (s *BlockStore) InsertBlocks(rows []*BlockRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	placeholder := "(" + strings.TrimRight(strings.Repeat("?,", len(blockColumns)), ",") + ")"
	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(blockColumns))

	for i, row := range rows {
		placeholders[i] = placeholder
		var finalized int
		if row.Finalized {
			finalized = 1
		}
		args = append(args,
			row.BlockNumber, row.Timestamp, row.BlockHash.Hex(), row.ParentHash.Hex(),
			row.GasUsed, row.GasLimit, row.TxCount, row.BaseFeeGwei,
			row.MinPriorityFeeGwei, row.MaxPriorityFeeGwei, row.MedianPriorityFeeGwei,
			row.AvgPriorityFeeGwei, row.TotalPriorityFeeGwei,
			row.BlockTimeSec, row.MgasPerSec, row.TPS,
			finalized, row.FinalizedAt, row.MilestoneID, row.TimeToFinalitySec,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO blocks (%s) VALUES %s ON CONFLICT (block_number) DO NOTHING",
		strings.Join(blockColumns, ", "),
		strings.Join(placeholders, ", "),
	)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert blocks: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count inserted blocks: %w", err)
	}

	return inserted, nil
}

// GetBlock returns the block at the given number, or nil if absent.
func (s *BlockStore) GetBlock(blockNum uint64) (*BlockRow, error) {
	var row BlockRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM blocks WHERE block_number = ?`, blockNum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query block %d: %w", blockNum, err)
	}
	return &row, nil
}

// GetBlockTx is GetBlock inside an open transaction.
func (s *BlockStore) GetBlockTx(tx *sql.Tx, blockNum uint64) (*BlockRow, error) {
	var row BlockRow
	err := meddler.QueryRow(tx, &row, `SELECT * FROM blocks WHERE block_number = ?`, blockNum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query block %d: %w", blockNum, err)
	}
	return &row, nil
}

// GetHighestBlock returns the stored block with the greatest number, or nil
// when the table is empty. A primary-key index walk, not a scan.
func (s *BlockStore) GetHighestBlock() (*BlockRow, error) {
	var row BlockRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM blocks ORDER BY block_number DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query highest block: %w", err)
	}
	return &row, nil
}

// GetLowestBlock returns the stored block with the smallest number, or nil.
func (s *BlockStore) GetLowestBlock() (*BlockRow, error) {
	var row BlockRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM blocks ORDER BY block_number ASC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lowest block: %w", err)
	}
	return &row, nil
}

// TimestampsByNumbers returns the timestamps of the given blocks via an
// IN-probe on the primary key; blocks not present are absent from the map.
func (s *BlockStore) TimestampsByNumbers(blockNums []uint64) (map[uint64]uint64, error) {
	if len(blockNums) == 0 {
		return map[uint64]uint64{}, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(blockNums)), ",")
	args := make([]any, len(blockNums))
	for i, n := range blockNums {
		args[i] = n
	}

	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT block_number, timestamp FROM blocks WHERE block_number IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query block timestamps: %w", err)
	}
	defer rows.Close()

	result := make(map[uint64]uint64, len(blockNums))
	for rows.Next() {
		var num, ts uint64
		if err := rows.Scan(&num, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan block timestamp: %w", err)
		}
		result[num] = ts
	}

	return result, rows.Err()
}

// FeeUpdate carries recomputed priority-fee metrics for one legacy row.
type FeeUpdate struct {
	BlockNumber           uint64
	MinPriorityFeeGwei    float64
	MaxPriorityFeeGwei    float64
	MedianPriorityFeeGwei float64
	AvgPriorityFeeGwei    float64
	TotalPriorityFeeGwei  float64
}

// UpdateFeeMetrics applies recomputed priority-fee metrics to existing rows in
// one transaction.
func (s *BlockStore) UpdateFeeMetrics(updates []FeeUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	stmt, err := tx.Prepare(`
		UPDATE blocks SET
			min_priority_fee_gwei = ?,
			max_priority_fee_gwei = ?,
			median_priority_fee_gwei = ?,
			avg_priority_fee_gwei = ?,
			total_priority_fee_gwei = ?
		WHERE block_number = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare fee update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.Exec(
			u.MinPriorityFeeGwei, u.MaxPriorityFeeGwei, u.MedianPriorityFeeGwei,
			u.AvgPriorityFeeGwei, u.TotalPriorityFeeGwei, u.BlockNumber,
		); err != nil {
			return fmt.Errorf("failed to update fees for block %d: %w", u.BlockNumber, err)
		}
	}

	return tx.Commit()
}

// FeeCandidates returns up to limit tx-bearing blocks in [fromBlock, toBlock]
// whose receipt-based fee columns are missing or suspect (zero total on a
// tx-bearing row means a legacy zero-when-empty insert).
func (s *BlockStore) FeeCandidates(fromBlock, toBlock uint64, limit int) ([]*BlockRow, error) {
	var rows []*BlockRow
	err := meddler.QueryAll(s.db, &rows, `
		SELECT * FROM blocks
		WHERE block_number BETWEEN ? AND ?
		  AND tx_count > 0
		  AND (avg_priority_fee_gwei IS NULL
		       OR total_priority_fee_gwei IS NULL
		       OR total_priority_fee_gwei = 0)
		ORDER BY block_number DESC
		LIMIT ?
	`, fromBlock, toBlock, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee candidates: %w", err)
	}
	return rows, nil
}

// BlocksInRange returns all tx-bearing blocks in [fromBlock, toBlock],
// regardless of their fee columns. Used by the recalculation mode.
func (s *BlockStore) BlocksInRange(fromBlock, toBlock uint64, limit int) ([]*BlockRow, error) {
	var rows []*BlockRow
	err := meddler.QueryAll(s.db, &rows, `
		SELECT * FROM blocks
		WHERE block_number BETWEEN ? AND ?
		  AND tx_count > 0
		ORDER BY block_number DESC
		LIMIT ?
	`, fromBlock, toBlock, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks in range: %w", err)
	}
	return rows, nil
}

// BlockTimeUpdate carries a recomputed block interval for one row.
type BlockTimeUpdate struct {
	BlockNumber  uint64
	BlockTimeSec float64
	MgasPerSec   float64
	TPS          float64
}

// UpdateBlockTimes repairs rows whose block interval is missing or suspect.
// The guard clause keeps sane live-path values untouched; only null or
// implausibly large intervals (first-block-after-gap artifacts) are rewritten.
func (s *BlockStore) UpdateBlockTimes(updates []BlockTimeUpdate, maxSaneSec float64) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	stmt, err := tx.Prepare(`
		UPDATE blocks SET
			block_time_sec = ?,
			mgas_per_sec = ?,
			tps = ?
		WHERE block_number = ?
		  AND (block_time_sec IS NULL OR block_time_sec > ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare block time update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.Exec(u.BlockTimeSec, u.MgasPerSec, u.TPS, u.BlockNumber, maxSaneSec); err != nil {
			return fmt.Errorf("failed to update block time for block %d: %w", u.BlockNumber, err)
		}
	}

	return tx.Commit()
}

// DeleteBlockTx removes a block row inside an open transaction. Only the reorg
// handler calls this, paired with an archive insert.
func (s *BlockStore) DeleteBlockTx(tx *sql.Tx, blockNum uint64) error {
	if _, err := tx.Exec(`DELETE FROM blocks WHERE block_number = ?`, blockNum); err != nil {
		return fmt.Errorf("failed to delete block %d: %w", blockNum, err)
	}
	return nil
}

// DB exposes the underlying handle for transaction scoping by collaborators.
func (s *BlockStore) DB() *sql.DB {
	return s.db
}
