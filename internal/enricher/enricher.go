// Package enricher overlays receipt-derived priority-fee metrics onto block
// rows before they are persisted. Transaction bodies alone only bound what a
// sender was willing to pay; receipts carry the effective price and the gas
// actually burned, so receipt metrics replace the transaction-derived ones
// wholesale whenever receipts are available.
package enricher

import (
	"context"
	"math/big"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/feemetrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
)

// Target pairs a fetched block with the row being prepared for insert.
type Target struct {
	Block *rpcx.Block
	Row   *store.BlockRow
}

// Enricher fetches receipts and applies receipt-based fee metrics to rows.
type Enricher struct {
	rpc *rpcx.Client
	log *logger.Logger
}

// New creates an Enricher.
func New(rpc *rpcx.Client, log *logger.Logger) *Enricher {
	return &Enricher{rpc: rpc, log: log}
}

// EnrichReliably fetches receipts for every tx-bearing target and applies
// them, retrying until complete or the context fires. The live path calls this
// under a deadline: on the live path enrichment is all-or-nothing, so the only
// error this returns is the context's.
func (e *Enricher) EnrichReliably(ctx context.Context, targets []Target) error {
	blockNums := make([]uint64, 0, len(targets))
	for _, t := range targets {
		if t.Block.TxCount() > 0 {
			blockNums = append(blockNums, uint64(t.Block.Number))
		}
	}
	if len(blockNums) == 0 {
		return nil
	}

	started := time.Now()
	receipts, err := e.rpc.ReceiptsByBlocksReliably(ctx, blockNums)
	if err != nil {
		return err
	}
	metrics.EnrichmentTimeLog(time.Since(started))

	e.Apply(targets, receipts)
	return nil
}

// EnrichBestEffort fetches receipts with a single fan-out pass and applies
// whatever came back. Backfillers use this; rows left unenriched are picked up
// later by the fee backfiller.
func (e *Enricher) EnrichBestEffort(ctx context.Context, targets []Target) {
	blockNums := make([]uint64, 0, len(targets))
	for _, t := range targets {
		if t.Block.TxCount() > 0 {
			blockNums = append(blockNums, uint64(t.Block.Number))
		}
	}
	if len(blockNums) == 0 {
		return
	}

	receipts, err := e.rpc.ReceiptsByBlocks(ctx, blockNums)
	if err != nil {
		e.log.Debugf("receipt fetch incomplete, rows stay unenriched: %v", err)
		return
	}

	e.Apply(targets, receipts)
}

// Apply overlays receipt-based fee metrics onto each target row that has
// receipts in the map, returning the number of rows updated. Rows without
// receipts keep their transaction-derived metrics with null average and total.
func (e *Enricher) Apply(targets []Target, receipts map[uint64][]rpcx.Receipt) int {
	updated := 0
	for _, t := range targets {
		blockReceipts, ok := receipts[uint64(t.Block.Number)]
		if !ok || len(blockReceipts) == 0 {
			continue
		}

		var baseFee *big.Int
		if t.Block.BaseFeePerGas != nil {
			baseFee = t.Block.BaseFeePerGas.ToInt()
		}

		summary := feemetrics.ComputeReceipts(blockReceipts, baseFee)
		if summary == nil {
			continue
		}

		t.Row.MinPriorityFeeGwei = &summary.MinGwei
		t.Row.MaxPriorityFeeGwei = &summary.MaxGwei
		t.Row.MedianPriorityFeeGwei = &summary.MedianGwei
		t.Row.AvgPriorityFeeGwei = summary.AvgGwei
		t.Row.TotalPriorityFeeGwei = summary.TotalGwei
		updated++
	}
	return updated
}
