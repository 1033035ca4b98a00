package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/feemetrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/goran-ethernal/MilestoneIndexor/internal/worker"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
)

// windowSpanFactor sizes the sliding candidate window relative to the batch.
const windowSpanFactor = 10

// FeeBackfiller repairs receipt-derived fee metrics on historical rows: blocks
// written by the backfiller under best-effort enrichment, rows from legacy
// deployments with zero-instead-of-null totals, and suspect block intervals
// left by ingestion gaps. With a recalculation range configured it instead
// recomputes every tx-bearing row in that range.
type FeeBackfiller struct {
	cfg      config.FeeBackfillConfig
	rpc      *rpcx.Client
	blocks   *store.BlockStore
	cursors  *store.CursorStore
	registry *worker.StatusRegistry
	log      *logger.Logger

	// cursor is the top of the sliding window
	cursor uint64
	floor  uint64
	recalc bool
}

// NewFeeBackfiller creates a FeeBackfiller.
func NewFeeBackfiller(
	cfg config.FeeBackfillConfig,
	rpc *rpcx.Client,
	blocks *store.BlockStore,
	cursors *store.CursorStore,
	registry *worker.StatusRegistry,
	log *logger.Logger,
) *FeeBackfiller {
	return &FeeBackfiller{
		cfg:      cfg,
		rpc:      rpc,
		blocks:   blocks,
		cursors:  cursors,
		registry: registry,
		log:      log,
	}
}

// Name implements worker.Worker.
func (f *FeeBackfiller) Name() string {
	return common.ComponentFeeBackfiller
}

// Run implements worker.Worker.
func (f *FeeBackfiller) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := f.initCursor(); err != nil {
			return fmt.Errorf("fee backfiller startup: %w", err)
		}
		if f.cursor > 0 {
			break
		}

		f.registry.Set(f.Name(), worker.StateIdle)
		if !worker.SleepCtx(ctx, f.cfg.Pause.Duration) {
			return ctx.Err()
		}
	}

	f.log.Infof("fee backfiller starting: from=%d floor=%d recalc=%t", f.cursor, f.floor, f.recalc)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if f.cursor < f.floor || f.cursor == 0 {
			f.log.Infof("fee backfill complete at block %d", f.cursor)
			return nil
		}

		if err := f.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			f.registry.SetError(f.Name(), err)
			metrics.ErrorsInc(f.Name())
			f.log.Errorf("fee backfiller iteration failed: %v", err)
			if !worker.SleepCtx(ctx, transientRetry*time.Second) {
				return ctx.Err()
			}
			continue
		}

		if !worker.SleepCtx(ctx, f.cfg.Pause.Duration) {
			return ctx.Err()
		}
	}
}

// initCursor starts the window at the recalculation range's top when one is
// configured, else at the persisted cursor, else at the highest stored block.
func (f *FeeBackfiller) initCursor() error {
	if f.cursor > 0 {
		return nil
	}

	if from, to, ok := f.cfg.RecalcRange(); ok {
		f.recalc = true
		f.cursor = to
		f.floor = from
		return nil
	}

	f.floor = f.cfg.TargetBlock
	if f.floor == 0 {
		f.floor = 1
	}

	cursor, err := f.cursors.Get(store.ServiceFeeBackfiller)
	if err != nil {
		return err
	}
	if cursor != nil {
		f.cursor = cursor.LastPosition
		return nil
	}

	highest, err := f.blocks.GetHighestBlock()
	if err != nil {
		return err
	}
	if highest != nil {
		f.cursor = highest.BlockNumber
	}
	return nil
}

func (f *FeeBackfiller) iterate(ctx context.Context) error {
	f.registry.Set(f.Name(), worker.StateRunning)
	started := time.Now()

	top := f.cursor
	low := f.floor
	if span := uint64(f.cfg.BatchSize * windowSpanFactor); top >= low+span {
		low = top - span + 1
	}

	var (
		candidates []*store.BlockRow
		err        error
	)
	if f.recalc {
		candidates, err = f.blocks.BlocksInRange(low, top, f.cfg.BatchSize)
	} else {
		candidates, err = f.blocks.FeeCandidates(low, top, f.cfg.BatchSize)
	}
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		return f.advance(low - 1)
	}

	repaired, err := f.repairFees(ctx, candidates)
	if err != nil {
		return err
	}

	if err := f.repairBlockTimes(candidates); err != nil {
		return err
	}

	metrics.FeeRowsRepairedInc(repaired)
	metrics.BatchProcessingTimeLog(f.Name(), time.Since(started))

	// Everything in the window above the lowest candidate has been visited;
	// rows still matching the candidate predicate after repair (legitimately
	// zero-fee blocks) must not pin the window in place.
	newTop := candidates[len(candidates)-1].BlockNumber - 1
	if len(candidates) < f.cfg.BatchSize {
		newTop = low - 1
	}

	f.log.Debugf("fee backfill pass: window=[%d, %d] candidates=%d repaired=%d",
		low, top, len(candidates), repaired)

	return f.advance(newTop)
}

func (f *FeeBackfiller) advance(newTop uint64) error {
	f.cursor = newTop
	if f.recalc {
		// recalculation runs are one-shot; the repair cursor stays untouched
		return nil
	}
	return f.cursors.Save(store.ServiceFeeBackfiller, newTop, nil)
}

// repairFees refetches receipts for the candidate rows and overwrites their
// fee columns with receipt-derived metrics.
func (f *FeeBackfiller) repairFees(ctx context.Context, candidates []*store.BlockRow) (int, error) {
	nums := make([]uint64, len(candidates))
	for i, row := range candidates {
		nums[i] = row.BlockNumber
	}

	receipts, err := f.rpc.ReceiptsByBlocks(ctx, nums)
	if err != nil {
		return 0, err
	}

	updates := make([]store.FeeUpdate, 0, len(candidates))
	for _, row := range candidates {
		blockReceipts, ok := receipts[row.BlockNumber]
		if !ok || len(blockReceipts) == 0 {
			continue
		}

		summary := feemetrics.ComputeReceipts(blockReceipts, common.GweiToWei(row.BaseFeeGwei))
		if summary == nil || summary.AvgGwei == nil || summary.TotalGwei == nil {
			continue
		}

		updates = append(updates, store.FeeUpdate{
			BlockNumber:           row.BlockNumber,
			MinPriorityFeeGwei:    summary.MinGwei,
			MaxPriorityFeeGwei:    summary.MaxGwei,
			MedianPriorityFeeGwei: summary.MedianGwei,
			AvgPriorityFeeGwei:    *summary.AvgGwei,
			TotalPriorityFeeGwei:  *summary.TotalGwei,
		})
	}

	if err := f.blocks.UpdateFeeMetrics(updates); err != nil {
		return 0, err
	}

	return len(updates), nil
}

// repairBlockTimes recomputes block intervals for the candidate rows from
// stored predecessor timestamps. The store-side guard only touches rows whose
// interval is null or beyond the sane maximum.
func (f *FeeBackfiller) repairBlockTimes(candidates []*store.BlockRow) error {
	prevNums := make([]uint64, 0, len(candidates))
	for _, row := range candidates {
		if row.BlockNumber > 0 {
			prevNums = append(prevNums, row.BlockNumber-1)
		}
	}

	prevTimestamps, err := f.blocks.TimestampsByNumbers(prevNums)
	if err != nil {
		return err
	}

	updates := make([]store.BlockTimeUpdate, 0, len(candidates))
	for _, row := range candidates {
		if row.BlockNumber == 0 {
			continue
		}
		prev, ok := prevTimestamps[row.BlockNumber-1]
		if !ok || row.Timestamp <= prev {
			continue
		}

		blockTime := float64(row.Timestamp - prev)
		updates = append(updates, store.BlockTimeUpdate{
			BlockNumber:  row.BlockNumber,
			BlockTimeSec: blockTime,
			MgasPerSec:   float64(row.GasUsed) / blockTime / 1e6,
			TPS:          float64(row.TxCount) / blockTime,
		})
	}

	return f.blocks.UpdateBlockTimes(updates, f.cfg.MaxSaneBlockTime.Duration.Seconds())
}
