// Package finality projects milestone attestations onto per-block finality
// records. Finality rows are written eagerly for every block a milestone
// covers, whether or not the block itself has been indexed yet; the ones
// written ahead of their block get their duration filled on reconciliation.
package finality

import (
	"context"

	internalcommon "github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/oracle"
	"github.com/goran-ethernal/MilestoneIndexor/internal/push"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
)

// Writer turns milestones into block_finality rows and finality updates on
// already-stored blocks.
type Writer struct {
	blocks    *store.BlockStore
	finality  *store.FinalityStore
	stats     *store.StatsStore
	push      *push.Client
	tipWindow uint64
	log       *logger.Logger
}

// NewWriter creates a Writer. tipWindow bounds how far behind a milestone's
// end block per-block finality pushes are attempted.
func NewWriter(
	blocks *store.BlockStore,
	finality *store.FinalityStore,
	stats *store.StatsStore,
	pushClient *push.Client,
	tipWindow uint64,
	log *logger.Logger,
) *Writer {
	return &Writer{
		blocks:    blocks,
		finality:  finality,
		stats:     stats,
		push:      pushClient,
		tipWindow: tipWindow,
		log:       log,
	}
}

// WriteMilestone records finality for every block the milestone covers. The
// time to finality is milestone timestamp minus block timestamp; blocks not
// yet indexed get a null duration that reconciliation fills later. Replays are
// harmless: rows are write-once except for filling those nulls.
func (w *Writer) WriteMilestone(ctx context.Context, m *oracle.Milestone) error {
	blockNums := internalcommon.BlockRange(m.StartBlock, m.EndBlock)
	if len(blockNums) == 0 {
		w.log.Warnf("milestone %d covers inverted range [%d, %d], skipping", m.SequenceID, m.StartBlock, m.EndBlock)
		return nil
	}

	timestamps, err := w.blocks.TimestampsByNumbers(blockNums)
	if err != nil {
		return err
	}

	rows := make([]*store.FinalityRow, 0, len(blockNums))
	for _, n := range blockNums {
		row := &store.FinalityRow{
			BlockNumber: n,
			MilestoneID: m.MilestoneID,
			FinalizedAt: m.Timestamp,
		}
		if ts, ok := timestamps[n]; ok {
			ttf := float64(m.Timestamp) - float64(ts)
			row.TimeToFinalitySec = &ttf
		}
		rows = append(rows, row)
	}

	inserted, err := w.finality.UpsertRows(rows)
	if err != nil {
		return err
	}

	// Mark the already-stored blocks finalized and fill any durations left
	// null by an earlier pass over then-missing blocks.
	if err := w.finality.ReconcileNewBlocks(blockNums); err != nil {
		return err
	}

	// Only newly recorded blocks count; a milestone replay after a crash
	// must not inflate the finalized total.
	if inserted > 0 {
		if err := w.stats.BumpFinalized(store.TableBlocks, m.StartBlock, m.EndBlock, uint64(inserted)); err != nil {
			return err
		}
	}

	metrics.FinalityRowsWrittenInc(len(rows))

	w.pushTip(ctx, m, rows)

	w.log.Infof("milestone finalized blocks: seq=%d range=[%d, %d]", m.SequenceID, m.StartBlock, m.EndBlock)

	return nil
}

// pushTip sends advisory finality events for blocks near the milestone's end.
// Older blocks are backfill traffic nobody is watching live.
func (w *Writer) pushTip(ctx context.Context, m *oracle.Milestone, rows []*store.FinalityRow) {
	if w.push == nil || !w.push.Enabled() {
		return
	}

	var cutoff uint64
	if m.EndBlock > w.tipWindow {
		cutoff = m.EndBlock - w.tipWindow
	}

	type finalityEvent struct {
		BlockNumber       uint64   `json:"block_number"`
		MilestoneID       uint64   `json:"milestone_id"`
		FinalizedAt       uint64   `json:"finalized_at"`
		TimeToFinalitySec *float64 `json:"time_to_finality_sec"`
	}

	events := make([]finalityEvent, 0, w.tipWindow)
	for _, row := range rows {
		if row.BlockNumber < cutoff {
			continue
		}
		events = append(events, finalityEvent{
			BlockNumber:       row.BlockNumber,
			MilestoneID:       row.MilestoneID,
			FinalizedAt:       row.FinalizedAt,
			TimeToFinalitySec: row.TimeToFinalitySec,
		})
	}

	if len(events) > 0 {
		w.push.SendAsync(ctx, "blocks_finalized", events)
	}
}
