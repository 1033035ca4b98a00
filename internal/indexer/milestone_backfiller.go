package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/finality"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/oracle"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/goran-ethernal/MilestoneIndexor/internal/worker"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
)

// MilestoneBackfiller walks milestone history backwards from the lowest stored
// sequence id down to the configured target, projecting finality onto any
// already-backfilled blocks as it goes.
type MilestoneBackfiller struct {
	cfg      config.BackfillConfig
	oracle   *oracle.Client
	store    *store.MilestoneStore
	cursors  *store.CursorStore
	stats    *store.StatsStore
	writer   *finality.Writer
	registry *worker.StatusRegistry
	log      *logger.Logger

	// next sequence to fetch is cursor-1; the cursor itself is already stored
	cursor uint64
}

// NewMilestoneBackfiller creates a MilestoneBackfiller.
func NewMilestoneBackfiller(
	cfg config.BackfillConfig,
	oracleClient *oracle.Client,
	milestones *store.MilestoneStore,
	cursors *store.CursorStore,
	stats *store.StatsStore,
	writer *finality.Writer,
	registry *worker.StatusRegistry,
	log *logger.Logger,
) *MilestoneBackfiller {
	return &MilestoneBackfiller{
		cfg:      cfg,
		oracle:   oracleClient,
		store:    milestones,
		cursors:  cursors,
		stats:    stats,
		writer:   writer,
		registry: registry,
		log:      log,
	}
}

// Name implements worker.Worker.
func (m *MilestoneBackfiller) Name() string {
	return common.ComponentMilestoneBackfiller
}

// Run implements worker.Worker.
func (m *MilestoneBackfiller) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := m.initCursor(); err != nil {
			return fmt.Errorf("milestone backfiller startup: %w", err)
		}
		if m.cursor > 0 {
			break
		}

		m.registry.Set(m.Name(), worker.StateIdle)
		if !worker.SleepCtx(ctx, m.cfg.Pause.Duration) {
			return ctx.Err()
		}
	}

	m.log.Infof("milestone backfiller starting: from=%d target=%d", m.cursor, m.cfg.TargetSequence)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if m.cursor <= m.cfg.TargetSequence || m.cursor <= 1 {
			m.log.Infof("milestone backfill complete at sequence %d", m.cursor)
			return nil
		}

		if err := m.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			m.registry.SetError(m.Name(), err)
			metrics.ErrorsInc(m.Name())
			m.log.Errorf("milestone backfiller iteration failed: %v", err)
			if !worker.SleepCtx(ctx, transientRetry*time.Second) {
				return ctx.Err()
			}
			continue
		}

		if !worker.SleepCtx(ctx, m.cfg.Pause.Duration) {
			return ctx.Err()
		}
	}
}

func (m *MilestoneBackfiller) initCursor() error {
	if m.cursor > 0 {
		return nil
	}

	cursor, err := m.cursors.Get(store.ServiceMilestoneBackfiller)
	if err != nil {
		return err
	}
	if cursor != nil {
		m.cursor = cursor.LastPosition
		return nil
	}

	lowest, err := m.store.GetLowest()
	if err != nil {
		return err
	}
	if lowest != nil {
		m.cursor = lowest.SequenceID
	}
	return nil
}

func (m *MilestoneBackfiller) iterate(ctx context.Context) error {
	m.registry.Set(m.Name(), worker.StateRunning)
	started := time.Now()

	high := m.cursor - 1
	low := m.cfg.TargetSequence
	if low == 0 {
		low = 1
	}
	if span := uint64(m.cfg.BatchSize); high >= low+span {
		low = high - span + 1
	}

	fetched, err := m.oracle.Milestones(ctx, common.BlockRange(low, high))
	if err != nil {
		return err
	}

	processed := 0
	for seq := high; seq >= low; seq-- {
		milestone, ok := fetched[seq]
		if !ok {
			// hole in the fetch; retry from here next iteration
			m.log.Debugf("milestone %d not fetched, holding at %d", seq, m.cursor)
			break
		}

		if err := m.ingest(ctx, milestone); err != nil {
			return err
		}
		processed++

		if seq == low {
			break
		}
	}

	if processed == 0 {
		return fmt.Errorf("no milestones fetched walking down from %d", high)
	}

	metrics.MilestonesIndexedInc(m.Name(), processed)
	metrics.BatchProcessingTimeLog(m.Name(), time.Since(started))

	m.log.Debugf("backfilled milestones [%d, %d]", m.cursor, high)

	return nil
}

func (m *MilestoneBackfiller) ingest(ctx context.Context, milestone *oracle.Milestone) error {
	inserted, err := m.store.Insert(&store.MilestoneRow{
		SequenceID:  milestone.SequenceID,
		MilestoneID: milestone.MilestoneID,
		StartBlock:  milestone.StartBlock,
		EndBlock:    milestone.EndBlock,
		Hash:        milestone.Hash,
		Proposer:    milestone.Proposer,
		Timestamp:   milestone.Timestamp,
	})
	if err != nil {
		return err
	}

	if err := m.writer.WriteMilestone(ctx, milestone); err != nil {
		return err
	}

	if err := m.cursors.Save(store.ServiceMilestoneBackfiller, milestone.SequenceID, nil); err != nil {
		return err
	}

	if inserted {
		if err := m.stats.Bump(store.TableMilestones, milestone.SequenceID, milestone.SequenceID, 1); err != nil {
			return err
		}
	}

	m.cursor = milestone.SequenceID

	return nil
}
