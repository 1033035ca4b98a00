package store

import (
	"github.com/ethereum/go-ethereum/common"
)

// Service names owning rows in indexer_state. Each cursor has exactly one
// writer; concurrent writers would corrupt gap-freeness.
const (
	ServiceBlockIndexer        = "block_indexer"
	ServiceMilestoneIndexer    = "milestone_indexer"
	ServiceBlockBackfiller     = "block_backfiller"
	ServiceMilestoneBackfiller = "milestone_backfiller"
	ServiceFeeBackfiller       = "historical_priority_fee_backfiller"
)

// Hot table names used as table_stats keys.
const (
	TableBlocks     = "blocks"
	TableMilestones = "milestones"
)

// BlockRow is a row of the blocks table. Priority-fee average and total stay
// null until receipt data was available for every transaction.
type BlockRow struct {
	BlockNumber           uint64      `meddler:"block_number"`
	Timestamp             uint64      `meddler:"timestamp"`
	BlockHash             common.Hash `meddler:"block_hash,hash"`
	ParentHash            common.Hash `meddler:"parent_hash,hash"`
	GasUsed               uint64      `meddler:"gas_used"`
	GasLimit              uint64      `meddler:"gas_limit"`
	TxCount               int         `meddler:"tx_count"`
	BaseFeeGwei           float64     `meddler:"base_fee_gwei"`
	MinPriorityFeeGwei    *float64    `meddler:"min_priority_fee_gwei"`
	MaxPriorityFeeGwei    *float64    `meddler:"max_priority_fee_gwei"`
	MedianPriorityFeeGwei *float64    `meddler:"median_priority_fee_gwei"`
	AvgPriorityFeeGwei    *float64    `meddler:"avg_priority_fee_gwei"`
	TotalPriorityFeeGwei  *float64    `meddler:"total_priority_fee_gwei"`
	BlockTimeSec          *float64    `meddler:"block_time_sec"`
	MgasPerSec            *float64    `meddler:"mgas_per_sec"`
	TPS                   *float64    `meddler:"tps"`
	Finalized             bool        `meddler:"finalized"`
	FinalizedAt           *uint64     `meddler:"finalized_at"`
	MilestoneID           *uint64     `meddler:"milestone_id"`
	TimeToFinalitySec     *float64    `meddler:"time_to_finality_sec"`
}

// MilestoneRow is a row of the milestones table. Immutable after insert.
type MilestoneRow struct {
	SequenceID  uint64      `meddler:"sequence_id"`
	MilestoneID uint64      `meddler:"milestone_id"`
	StartBlock  uint64      `meddler:"start_block"`
	EndBlock    uint64      `meddler:"end_block"`
	Hash        common.Hash `meddler:"hash,hash"`
	Proposer    *string     `meddler:"proposer"`
	Timestamp   uint64      `meddler:"timestamp"`
}

// FinalityRow is a row of the block_finality table. Written eagerly for every
// block a milestone covers, even before the block itself is indexed;
// TimeToFinalitySec stays null until the block's timestamp is known.
type FinalityRow struct {
	BlockNumber       uint64   `meddler:"block_number"`
	MilestoneID       uint64   `meddler:"milestone_id"`
	FinalizedAt       uint64   `meddler:"finalized_at"`
	TimeToFinalitySec *float64 `meddler:"time_to_finality_sec"`
}

// ReorgedBlockRow is an append-only archive row holding a replaced block's
// payload.
type ReorgedBlockRow struct {
	ID             uint64      `meddler:"id,pk"`
	BlockNumber    uint64      `meddler:"block_number"`
	Timestamp      uint64      `meddler:"timestamp"`
	BlockHash      common.Hash `meddler:"block_hash,hash"`
	ParentHash     common.Hash `meddler:"parent_hash,hash"`
	GasUsed        uint64      `meddler:"gas_used"`
	GasLimit       uint64      `meddler:"gas_limit"`
	TxCount        int         `meddler:"tx_count"`
	BaseFeeGwei    float64     `meddler:"base_fee_gwei"`
	ReorgedAt      uint64      `meddler:"reorged_at"`
	ReplacedByHash common.Hash `meddler:"replaced_by_hash,hash"`
}

// CursorRow is a row of the indexer_state table. LastPosition is a block
// number or a sequence id, interpreted by the owning service.
type CursorRow struct {
	ServiceName  string       `meddler:"service_name"`
	LastPosition uint64       `meddler:"last_position"`
	LastHash     *common.Hash `meddler:"last_hash,hash"`
	UpdatedAt    int64        `meddler:"updated_at"`
}

// StatsRow is a row of the table_stats table: an O(1) cache of headline
// numbers maintained incrementally by inserters. total_count is an
// authoritative approximation, not a live count.
type StatsRow struct {
	TableName      string  `meddler:"table_name"`
	MinValue       *uint64 `meddler:"min_value"`
	MaxValue       *uint64 `meddler:"max_value"`
	TotalCount     uint64  `meddler:"total_count"`
	FinalizedCount uint64  `meddler:"finalized_count"`
	MinFinalized   *uint64 `meddler:"min_finalized"`
	MaxFinalized   *uint64 `meddler:"max_finalized"`
}

// WorkerStatusRow is a row of the worker_status table, the operator's primary
// diagnostic for worker health.
type WorkerStatusRow struct {
	WorkerName  string  `meddler:"worker_name"`
	State       string  `meddler:"state"`
	LastError   *string `meddler:"last_error"`
	LastErrorAt *int64  `meddler:"last_error_at"`
	UpdatedAt   int64   `meddler:"updated_at"`
}
