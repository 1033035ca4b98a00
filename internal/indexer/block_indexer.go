package indexer

import (
	"context"
	"fmt"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/enricher"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/push"
	"github.com/goran-ethernal/MilestoneIndexor/internal/reorg"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/goran-ethernal/MilestoneIndexor/internal/worker"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
)

// BlockIndexer is the live forward indexer. It follows the chain tip, keeps
// the stored chain gap-free and parent-linked, and never persists a tx-bearing
// block without complete receipt metrics.
type BlockIndexer struct {
	cfg      config.BlockIndexerConfig
	rpc      *rpcx.Client
	blocks   *store.BlockStore
	finality *store.FinalityStore
	cursors  *store.CursorStore
	stats    *store.StatsStore
	enricher *enricher.Enricher
	reorgs   *reorg.Handler
	registry *worker.StatusRegistry
	push     *push.Client
	log      *logger.Logger

	// in-memory mirror of the persisted cursor
	lastNumber    uint64
	lastHash      *gethcommon.Hash
	lastTimestamp uint64
}

// NewBlockIndexer creates a BlockIndexer.
func NewBlockIndexer(
	cfg config.BlockIndexerConfig,
	rpc *rpcx.Client,
	blocks *store.BlockStore,
	finality *store.FinalityStore,
	cursors *store.CursorStore,
	stats *store.StatsStore,
	enr *enricher.Enricher,
	reorgs *reorg.Handler,
	registry *worker.StatusRegistry,
	pushClient *push.Client,
	log *logger.Logger,
) *BlockIndexer {
	return &BlockIndexer{
		cfg:      cfg,
		rpc:      rpc,
		blocks:   blocks,
		finality: finality,
		cursors:  cursors,
		stats:    stats,
		enricher: enr,
		reorgs:   reorgs,
		registry: registry,
		push:     pushClient,
		log:      log,
	}
}

// Name implements worker.Worker.
func (b *BlockIndexer) Name() string {
	return common.ComponentBlockIndexer
}

// Run implements worker.Worker.
func (b *BlockIndexer) Run(ctx context.Context) error {
	if err := b.initCursor(ctx); err != nil {
		return fmt.Errorf("block indexer startup: %w", err)
	}

	b.log.Infof("block indexer starting from block %d", b.lastNumber)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		caughtUp, err := b.iterate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if reorg.IsFinalityViolation(err) {
				return err
			}

			b.registry.SetError(b.Name(), err)
			metrics.ErrorsInc(b.Name())
			b.log.Errorf("block indexer iteration failed: %v", err)
			if !worker.SleepCtx(ctx, transientRetry*time.Second) {
				return ctx.Err()
			}
			continue
		}

		sleep := b.cfg.LagSleep.Duration
		if caughtUp {
			b.registry.Set(b.Name(), worker.StateIdle)
			sleep = b.cfg.PollInterval.Duration
		}
		if !worker.SleepCtx(ctx, sleep) {
			return ctx.Err()
		}
	}
}

// initCursor resolves the resume point: the persisted cursor, else the highest
// stored block, else the current chain tip (fresh deployments start at the
// tip; history arrives via the backfiller).
func (b *BlockIndexer) initCursor(ctx context.Context) error {
	cursor, err := b.cursors.Get(store.ServiceBlockIndexer)
	if err != nil {
		return err
	}
	if cursor != nil {
		b.lastNumber = cursor.LastPosition
		b.lastHash = cursor.LastHash
		b.loadLastTimestamp()
		return nil
	}

	highest, err := b.blocks.GetHighestBlock()
	if err != nil {
		return err
	}
	if highest != nil {
		b.lastNumber = highest.BlockNumber
		b.lastHash = &highest.BlockHash
		b.lastTimestamp = highest.Timestamp
		return nil
	}

	tip, err := b.rpc.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}
	if tip > 0 {
		tip--
	}
	b.lastNumber = tip
	b.lastHash = nil
	return nil
}

func (b *BlockIndexer) loadLastTimestamp() {
	timestamps, err := b.blocks.TimestampsByNumbers([]uint64{b.lastNumber})
	if err != nil {
		b.log.Warnf("failed to load cursor block timestamp: %v", err)
		return
	}
	b.lastTimestamp = timestamps[b.lastNumber]
}

// iterate processes one batch and reports whether the indexer is caught up
// with the tip.
func (b *BlockIndexer) iterate(ctx context.Context) (bool, error) {
	tip, err := b.rpc.LatestBlockNumber(ctx)
	if err != nil {
		return false, err
	}

	next := b.lastNumber + 1
	if next > tip {
		return true, nil
	}

	b.registry.Set(b.Name(), worker.StateRunning)
	started := time.Now()

	batchEnd := next + uint64(b.cfg.BatchSize*b.rpc.EndpointCount()) - 1
	if batchEnd > tip {
		batchEnd = tip
	}

	fetched, err := b.rpc.BlocksByNumbers(ctx, common.BlockRange(next, batchEnd), true)
	if err != nil {
		return false, err
	}

	run := contiguousRun(fetched, next, batchEnd)
	if len(run) == 0 {
		return false, fmt.Errorf("no contiguous blocks fetched from %d", next)
	}

	// A parent hash that does not extend our stored head means the head was
	// reorged away. Rewind to the common ancestor and retry from there.
	if b.lastHash != nil && run[0].ParentHash != *b.lastHash {
		return false, b.rewind(ctx)
	}

	targets := make([]enricher.Target, len(run))
	prevTimestamp := b.lastTimestamp
	for i, block := range run {
		targets[i] = enricher.Target{
			Block: block,
			Row:   buildRow(block, nil, prevTimestamp),
		}
		prevTimestamp = uint64(block.Timestamp)
	}

	// All-or-nothing receipt enrichment, bounded so one dead batch cannot
	// stall the live path forever.
	enrichCtx, cancel := context.WithTimeout(ctx, b.cfg.EnrichTimeout.Duration)
	err = b.enricher.EnrichReliably(enrichCtx, targets)
	cancel()
	if err != nil {
		return false, fmt.Errorf("receipt enrichment incomplete for blocks [%d, %d]: %w",
			next, uint64(run[len(run)-1].Number), err)
	}

	rows := make([]*store.BlockRow, len(targets))
	nums := make([]uint64, len(targets))
	for i, t := range targets {
		rows[i] = t.Row
		nums[i] = t.Row.BlockNumber
	}

	inserted, err := b.blocks.InsertBlocks(rows)
	if err != nil {
		return false, err
	}

	// Blocks may land after the milestone that finalizes them; join them
	// against any pre-existing finality records now.
	if err := b.finality.ReconcileNewBlocks(nums); err != nil {
		return false, err
	}

	head := run[len(run)-1]
	headHash := head.Hash
	if err := b.cursors.Save(store.ServiceBlockIndexer, uint64(head.Number), &headHash); err != nil {
		return false, err
	}

	if err := b.stats.Bump(store.TableBlocks, nums[0], nums[len(nums)-1], uint64(inserted)); err != nil {
		return false, err
	}

	b.lastNumber = uint64(head.Number)
	b.lastHash = &headHash
	b.lastTimestamp = uint64(head.Timestamp)

	metrics.BlocksIndexedInc(b.Name(), len(rows))
	metrics.LastIndexedBlockSet(b.Name(), b.lastNumber)
	metrics.BatchProcessingTimeLog(b.Name(), time.Since(started))

	if b.push != nil {
		b.push.SendAsync(ctx, "blocks_indexed", rows)
	}

	b.log.Debugf("indexed blocks [%d, %d], tip=%d", nums[0], nums[len(nums)-1], tip)

	return tip-b.lastNumber <= b.cfg.LagThreshold, nil
}

// rewind delegates to the reorg handler and refreshes the in-memory cursor
// from the resolved ancestor.
func (b *BlockIndexer) rewind(ctx context.Context) error {
	ancestor, ancestorHash, err := b.reorgs.Handle(ctx, b.lastNumber)
	if err != nil {
		return err
	}

	b.lastNumber = ancestor
	b.lastHash = &ancestorHash
	b.lastTimestamp = 0
	b.loadLastTimestamp()

	return nil
}
