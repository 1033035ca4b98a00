// Package indexer contains the ingestion workers: the two forward indexers,
// the two backward backfillers and the historical fee backfiller. Each worker
// is a cooperative loop owning exactly one cursor; transient failures are
// logged and retried in place, and only unrecoverable conditions propagate out
// of Run.
package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/feemetrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
)

// transientRetry is the sleep after a failed loop iteration.
const transientRetry = 5 // seconds

// buildRow converts a fetched block into a store row, folding in the
// transaction-derived fee metrics. gasUsedByTx may be nil; the average and
// total then stay null until the enricher overlays receipt data.
func buildRow(b *rpcx.Block, gasUsedByTx map[common.Hash]uint64, prevTimestamp uint64) *store.BlockRow {
	m := feemetrics.ComputeBlock(b, gasUsedByTx, prevTimestamp)

	row := &store.BlockRow{
		BlockNumber:  uint64(b.Number),
		Timestamp:    uint64(b.Timestamp),
		BlockHash:    b.Hash,
		ParentHash:   b.ParentHash,
		GasUsed:      uint64(b.GasUsed),
		GasLimit:     uint64(b.GasLimit),
		TxCount:      b.TxCount(),
		BaseFeeGwei:  m.BaseFeeGwei,
		BlockTimeSec: m.BlockTimeSec,
		MgasPerSec:   m.MgasPerSec,
		TPS:          m.TPS,
	}

	if m.Priority != nil {
		row.MinPriorityFeeGwei = &m.Priority.MinGwei
		row.MaxPriorityFeeGwei = &m.Priority.MaxGwei
		row.MedianPriorityFeeGwei = &m.Priority.MedianGwei
		row.AvgPriorityFeeGwei = m.Priority.AvgGwei
		row.TotalPriorityFeeGwei = m.Priority.TotalGwei
	}

	return row
}

// contiguousRun returns the blocks forming an unbroken ascending run starting
// at from, with each block's parent hash matching its predecessor's hash.
// Fan-out results can have holes and, mid-reorg, mixed ancestries; everything
// from the first hole or hash break onward is dropped and refetched next
// iteration.
func contiguousRun(fetched map[uint64]*rpcx.Block, from, to uint64) []*rpcx.Block {
	run := make([]*rpcx.Block, 0, to-from+1)
	for n := from; n <= to; n++ {
		b, ok := fetched[n]
		if !ok {
			break
		}
		if len(run) > 0 && b.ParentHash != run[len(run)-1].Hash {
			break
		}
		run = append(run, b)
	}
	return run
}
