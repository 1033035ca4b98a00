package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/finality"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/oracle"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/goran-ethernal/MilestoneIndexor/internal/worker"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
)

// MilestoneIndexer polls the finality oracle's milestone count and ingests new
// milestones strictly in sequence order. A milestone is processed only when
// its predecessor is known, so a flaky oracle endpoint can delay finality but
// never produce an out-of-order or gapped milestone history.
type MilestoneIndexer struct {
	cfg      config.MilestoneIndexerConfig
	oracle   *oracle.Client
	store    *store.MilestoneStore
	cursors  *store.CursorStore
	stats    *store.StatsStore
	writer   *finality.Writer
	registry *worker.StatusRegistry
	log      *logger.Logger

	lastSeq uint64
	seen    *lru.Cache[uint64, struct{}]
}

// NewMilestoneIndexer creates a MilestoneIndexer.
func NewMilestoneIndexer(
	cfg config.MilestoneIndexerConfig,
	oracleClient *oracle.Client,
	milestones *store.MilestoneStore,
	cursors *store.CursorStore,
	stats *store.StatsStore,
	writer *finality.Writer,
	registry *worker.StatusRegistry,
	log *logger.Logger,
) *MilestoneIndexer {
	return &MilestoneIndexer{
		cfg:      cfg,
		oracle:   oracleClient,
		store:    milestones,
		cursors:  cursors,
		stats:    stats,
		writer:   writer,
		registry: registry,
		log:      log,
		seen:     lru.NewCache[uint64, struct{}](cfg.SeenCacheSize),
	}
}

// Name implements worker.Worker.
func (m *MilestoneIndexer) Name() string {
	return common.ComponentMilestoneIndexer
}

// Run implements worker.Worker.
func (m *MilestoneIndexer) Run(ctx context.Context) error {
	if err := m.initCursor(ctx); err != nil {
		return fmt.Errorf("milestone indexer startup: %w", err)
	}

	m.log.Infof("milestone indexer starting from sequence %d", m.lastSeq)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := m.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			m.registry.SetError(m.Name(), err)
			metrics.ErrorsInc(m.Name())
			m.log.Errorf("milestone indexer iteration failed: %v", err)
			if !worker.SleepCtx(ctx, transientRetry*time.Second) {
				return ctx.Err()
			}
			continue
		}

		m.registry.Set(m.Name(), worker.StateIdle)
		if !worker.SleepCtx(ctx, m.cfg.PollInterval.Duration) {
			return ctx.Err()
		}
	}
}

// initCursor resolves the resume sequence: the persisted cursor, else the
// highest stored milestone, else one before the oracle's current count so the
// first iteration ingests the latest milestone. The seen cache is seeded with
// the resume point so its successor passes the predecessor check.
func (m *MilestoneIndexer) initCursor(ctx context.Context) error {
	cursor, err := m.cursors.Get(store.ServiceMilestoneIndexer)
	if err != nil {
		return err
	}
	if cursor != nil {
		m.lastSeq = cursor.LastPosition
		m.seen.Add(m.lastSeq, struct{}{})
		return nil
	}

	highest, err := m.store.GetHighest()
	if err != nil {
		return err
	}
	if highest != nil {
		m.lastSeq = highest.SequenceID
		m.seen.Add(m.lastSeq, struct{}{})
		return nil
	}

	count, err := m.oracle.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		count--
	}
	m.lastSeq = count
	m.seen.Add(m.lastSeq, struct{}{})
	return nil
}

func (m *MilestoneIndexer) iterate(ctx context.Context) error {
	count, err := m.oracle.Count(ctx)
	if err != nil {
		return err
	}
	if count <= m.lastSeq {
		return nil
	}

	m.registry.Set(m.Name(), worker.StateRunning)
	started := time.Now()

	batchEnd := m.lastSeq + uint64(m.cfg.BatchSize)
	if batchEnd > count {
		batchEnd = count
	}

	fetched, err := m.oracle.Milestones(ctx, common.BlockRange(m.lastSeq+1, batchEnd))
	if err != nil {
		return err
	}

	// The batch is all or nothing: a hole anywhere means the response cannot
	// be trusted, so nothing from it is ingested until a later poll returns
	// the full range.
	for seq := m.lastSeq + 1; seq <= batchEnd; seq++ {
		if _, ok := fetched[seq]; !ok {
			m.log.Debugf("milestone %d not fetched, holding batch at %d", seq, m.lastSeq)
			return nil
		}
	}

	processed := 0
	for seq := m.lastSeq + 1; seq <= batchEnd; seq++ {
		milestone := fetched[seq]

		ready, err := m.predecessorKnown(seq)
		if err != nil {
			return err
		}
		if !ready {
			m.log.Warnf("milestone %d has no known predecessor, holding at %d", seq, m.lastSeq)
			break
		}

		if err := m.ingest(ctx, milestone); err != nil {
			return err
		}
		processed++
	}

	if processed > 0 {
		metrics.MilestonesIndexedInc(m.Name(), processed)
		metrics.LastMilestoneSequenceSet(m.lastSeq)
		metrics.BatchProcessingTimeLog(m.Name(), time.Since(started))
	}

	return nil
}

// predecessorKnown checks the seen cache first and falls back to a store
// lookup, covering restarts and cache evictions.
func (m *MilestoneIndexer) predecessorKnown(seq uint64) (bool, error) {
	if seq <= 1 {
		return true, nil
	}
	if m.seen.Contains(seq - 1) {
		return true, nil
	}
	return m.store.Exists(seq - 1)
}

// ingest persists one milestone and projects its finality. The cursor advances
// only after both succeeded, so a crash replays the milestone, which is
// idempotent end to end.
func (m *MilestoneIndexer) ingest(ctx context.Context, milestone *oracle.Milestone) error {
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

	if err := m.cursors.Save(store.ServiceMilestoneIndexer, milestone.SequenceID, nil); err != nil {
		return err
	}

	if inserted {
		if err := m.stats.Bump(store.TableMilestones, milestone.SequenceID, milestone.SequenceID, 1); err != nil {
			return err
		}
	}

	m.seen.Add(milestone.SequenceID, struct{}{})
	m.lastSeq = milestone.SequenceID

	m.log.Infof("ingested milestone: seq=%d blocks=[%d, %d]",
		milestone.SequenceID, milestone.StartBlock, milestone.EndBlock)

	return nil
}
