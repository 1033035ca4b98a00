package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/russross/meddler"
)

// ReorgStore writes the append-only archive of reorged-away block rows.
type ReorgStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewReorgStore creates a ReorgStore.
func NewReorgStore(db *sql.DB, log *logger.Logger) *ReorgStore {
	return &ReorgStore{db: db, log: log}
}

// ArchiveTx copies a replaced block row into the archive inside an open
// transaction. The caller pairs it with the delete of the main row.
func (s *ReorgStore) ArchiveTx(tx *sql.Tx, block *BlockRow, replacedByHash common.Hash) error {
	row := &ReorgedBlockRow{
		BlockNumber:    block.BlockNumber,
		Timestamp:      block.Timestamp,
		BlockHash:      block.BlockHash,
		ParentHash:     block.ParentHash,
		GasUsed:        block.GasUsed,
		GasLimit:       block.GasLimit,
		TxCount:        block.TxCount,
		BaseFeeGwei:    block.BaseFeeGwei,
		ReorgedAt:      uint64(time.Now().Unix()),
		ReplacedByHash: replacedByHash,
	}

	if err := meddler.Insert(tx, "reorged_blocks", row); err != nil {
		return fmt.Errorf("failed to archive reorged block %d: %w", block.BlockNumber, err)
	}

	return nil
}

// ByBlockNumber returns all archive rows for a block number, newest first.
func (s *ReorgStore) ByBlockNumber(blockNum uint64) ([]*ReorgedBlockRow, error) {
	var rows []*ReorgedBlockRow
	err := meddler.QueryAll(s.db, &rows, `
		SELECT * FROM reorged_blocks WHERE block_number = ? ORDER BY id DESC
	`, blockNum)
	if err != nil {
		return nil, fmt.Errorf("failed to query reorged blocks for %d: %w", blockNum, err)
	}
	return rows, nil
}
