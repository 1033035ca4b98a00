// Package reorg rewinds the store when the chain replaces blocks the live
// indexer already wrote. Replaced rows are archived, never silently lost, and
// a reorg that would cross a finalized block is a fatal condition.
package reorg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
)

// Handler resolves reorgs by walking backwards from the fork point until the
// stored chain and the live chain agree again.
type Handler struct {
	blocks  *store.BlockStore
	reorgs  *store.ReorgStore
	cursors *store.CursorStore
	stats   *store.StatsStore
	rpc     *rpcx.Client
	log     *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(
	blocks *store.BlockStore,
	reorgs *store.ReorgStore,
	cursors *store.CursorStore,
	stats *store.StatsStore,
	rpc *rpcx.Client,
	log *logger.Logger,
) *Handler {
	return &Handler{
		blocks:  blocks,
		reorgs:  reorgs,
		cursors: cursors,
		stats:   stats,
		rpc:     rpc,
		log:     log,
	}
}

// Handle walks down from forkBlock, archiving and deleting every stored row
// whose hash disagrees with the chain, until it finds the common ancestor. It
// rewinds the live indexer's cursor to the ancestor and returns its number and
// hash. A disagreement on a finalized row aborts with FinalityViolationError
// before any mutation of that row.
func (h *Handler) Handle(ctx context.Context, forkBlock uint64) (uint64, common.Hash, error) {
	h.log.Warnf("reorg detected, searching for common ancestor from block %d", forkBlock)

	depth := 0
	n := forkBlock

	for {
		chainBlock, err := h.rpc.BlockByNumber(ctx, n, false)
		if err != nil {
			return 0, common.Hash{}, fmt.Errorf("failed to fetch block %d during reorg: %w", n, err)
		}

		stored, err := h.blocks.GetBlock(n)
		if err != nil {
			return 0, common.Hash{}, err
		}

		// Nothing stored this low: the chain's block is the ancestor by
		// default and the indexer refills forward from here.
		if stored == nil {
			h.finish(n, chainBlock.Hash, depth)
			return n, chainBlock.Hash, nil
		}

		if stored.BlockHash == chainBlock.Hash {
			h.finish(n, chainBlock.Hash, depth)
			return n, chainBlock.Hash, nil
		}

		if stored.Finalized {
			return 0, common.Hash{}, &FinalityViolationError{
				BlockNumber: n,
				StoredHash:  stored.BlockHash,
				ChainHash:   chainBlock.Hash,
			}
		}

		if err := h.rewindBlock(stored.BlockNumber, chainBlock.Hash); err != nil {
			return 0, common.Hash{}, err
		}
		depth++

		if n == 0 {
			h.finish(0, chainBlock.Hash, depth)
			return 0, chainBlock.Hash, nil
		}
		n--
	}
}

// rewindBlock moves one replaced row to the archive atomically with its
// deletion, the stats decrement, and an interim cursor rewind. The row is
// re-read inside the transaction so the archived copy matches what is
// deleted, and the cursor moves with it so a crash mid-walk never leaves
// the cursor pointing above the deleted rows.
func (h *Handler) rewindBlock(blockNum uint64, replacedBy common.Hash) error {
	tx, err := h.blocks.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reorg transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			h.log.Errorf("failed to rollback reorg transaction: %v", err)
		}
	}()

	stored, err := h.blocks.GetBlockTx(tx, blockNum)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}

	if err := h.reorgs.ArchiveTx(tx, stored, replacedBy); err != nil {
		return err
	}
	if err := h.blocks.DeleteBlockTx(tx, blockNum); err != nil {
		return err
	}
	if err := h.stats.DecrementTx(tx, store.TableBlocks, 1); err != nil {
		return err
	}

	// Interim position below the deleted row; the hash is unknown until the
	// walk settles on the ancestor, which finish records.
	interim := blockNum
	if interim > 0 {
		interim--
	}
	if err := h.cursors.SaveTx(tx, store.ServiceBlockIndexer, interim, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorg transaction: %w", err)
	}

	h.log.Infof("archived reorged block: number=%d hash=%s", blockNum, stored.BlockHash.Hex())

	return nil
}

func (h *Handler) finish(ancestor uint64, ancestorHash common.Hash, depth int) {
	if err := h.cursors.Save(store.ServiceBlockIndexer, ancestor, &ancestorHash); err != nil {
		h.log.Errorf("failed to rewind block indexer cursor: %v", err)
	}

	if depth > 0 {
		metrics.ReorgHandled(depth)
	}

	h.log.Infof("reorg resolved: ancestor=%d depth=%d", ancestor, depth)
}
