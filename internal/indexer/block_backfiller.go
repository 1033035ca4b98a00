package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/enricher"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/goran-ethernal/MilestoneIndexor/internal/worker"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
)

// BlockBackfiller extends history backwards from the lowest stored block down
// to the configured target. Backfilled blocks are deep past: no reorg checks,
// best-effort receipt enrichment, and a clean exit once the target is reached.
type BlockBackfiller struct {
	cfg      config.BackfillConfig
	rpc      *rpcx.Client
	blocks   *store.BlockStore
	finality *store.FinalityStore
	cursors  *store.CursorStore
	stats    *store.StatsStore
	enricher *enricher.Enricher
	registry *worker.StatusRegistry
	log      *logger.Logger

	// next block to fetch is cursor-1; the cursor itself is already stored
	cursor uint64
}

// NewBlockBackfiller creates a BlockBackfiller.
func NewBlockBackfiller(
	cfg config.BackfillConfig,
	rpc *rpcx.Client,
	blocks *store.BlockStore,
	finality *store.FinalityStore,
	cursors *store.CursorStore,
	stats *store.StatsStore,
	enr *enricher.Enricher,
	registry *worker.StatusRegistry,
	log *logger.Logger,
) *BlockBackfiller {
	return &BlockBackfiller{
		cfg:      cfg,
		rpc:      rpc,
		blocks:   blocks,
		finality: finality,
		cursors:  cursors,
		stats:    stats,
		enricher: enr,
		registry: registry,
		log:      log,
	}
}

// Name implements worker.Worker.
func (b *BlockBackfiller) Name() string {
	return common.ComponentBlockBackfiller
}

// Run implements worker.Worker.
func (b *BlockBackfiller) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := b.initCursor(); err != nil {
			return fmt.Errorf("block backfiller startup: %w", err)
		}
		if b.cursor > 0 {
			break
		}

		// Nothing stored yet: the live indexer writes the first block and
		// the backfiller extends down from it.
		b.registry.Set(b.Name(), worker.StateIdle)
		if !worker.SleepCtx(ctx, b.cfg.Pause.Duration) {
			return ctx.Err()
		}
	}

	b.log.Infof("block backfiller starting: from=%d target=%d", b.cursor, b.cfg.TargetBlock)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if b.cursor <= b.cfg.TargetBlock || b.cursor <= 1 {
			b.log.Infof("block backfill complete at block %d", b.cursor)
			return nil
		}

		if err := b.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			b.registry.SetError(b.Name(), err)
			metrics.ErrorsInc(b.Name())
			b.log.Errorf("block backfiller iteration failed: %v", err)
			if !worker.SleepCtx(ctx, transientRetry*time.Second) {
				return ctx.Err()
			}
			continue
		}

		if !worker.SleepCtx(ctx, b.cfg.Pause.Duration) {
			return ctx.Err()
		}
	}
}

// initCursor resolves the lower frontier: the persisted cursor, else the
// lowest stored block. Zero means nothing is stored yet.
func (b *BlockBackfiller) initCursor() error {
	if b.cursor > 0 {
		return nil
	}

	cursor, err := b.cursors.Get(store.ServiceBlockBackfiller)
	if err != nil {
		return err
	}
	if cursor != nil {
		b.cursor = cursor.LastPosition
		return nil
	}

	lowest, err := b.blocks.GetLowestBlock()
	if err != nil {
		return err
	}
	if lowest != nil {
		b.cursor = lowest.BlockNumber
	}
	return nil
}

func (b *BlockBackfiller) iterate(ctx context.Context) error {
	b.registry.Set(b.Name(), worker.StateRunning)
	started := time.Now()

	high := b.cursor - 1
	low := b.cfg.TargetBlock
	if span := uint64(b.cfg.BatchSize * b.rpc.EndpointCount()); high >= low+span {
		low = high - span + 1
	}
	if low == 0 {
		low = 1
	}

	fetched, err := b.rpc.BlocksByNumbers(ctx, common.BlockRange(low, high), true)
	if err != nil {
		return err
	}

	// Walk down from the frontier, keeping only the unbroken run; holes are
	// refetched next iteration so the stored range stays gap-free.
	run := make([]*rpcx.Block, 0, high-low+1)
	for n := high; n >= low; n-- {
		block, ok := fetched[n]
		if !ok {
			break
		}
		run = append(run, block)
		if n == low {
			break
		}
	}
	if len(run) == 0 {
		return fmt.Errorf("no blocks fetched walking down from %d", high)
	}

	targets := make([]enricher.Target, len(run))
	for i, block := range run {
		// Block times for historical rows come from the predecessor in the
		// same fetch; the run's lowest block has no predecessor here and its
		// interval is repaired later by the fee backfiller.
		var prevTimestamp uint64
		if prev, ok := fetched[uint64(block.Number)-1]; ok {
			prevTimestamp = uint64(prev.Timestamp)
		}
		targets[i] = enricher.Target{
			Block: block,
			Row:   buildRow(block, nil, prevTimestamp),
		}
	}

	b.enricher.EnrichBestEffort(ctx, targets)

	rows := make([]*store.BlockRow, len(targets))
	nums := make([]uint64, len(targets))
	for i, t := range targets {
		rows[i] = t.Row
		nums[i] = t.Row.BlockNumber
	}

	inserted, err := b.blocks.InsertBlocks(rows)
	if err != nil {
		return err
	}

	if err := b.finality.ReconcileNewBlocks(nums); err != nil {
		return err
	}

	lowest := uint64(run[len(run)-1].Number)
	if err := b.cursors.Save(store.ServiceBlockBackfiller, lowest, nil); err != nil {
		return err
	}

	if err := b.stats.Bump(store.TableBlocks, lowest, high, uint64(inserted)); err != nil {
		return err
	}

	b.cursor = lowest

	metrics.BlocksIndexedInc(b.Name(), len(rows))
	metrics.LastIndexedBlockSet(b.Name(), lowest)
	metrics.BatchProcessingTimeLog(b.Name(), time.Since(started))

	b.log.Debugf("backfilled blocks [%d, %d]", lowest, high)

	return nil
}
