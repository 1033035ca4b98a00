package finality

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/db"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/migrations"
	"github.com/goran-ethernal/MilestoneIndexor/internal/oracle"
	"github.com/goran-ethernal/MilestoneIndexor/internal/push"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/stretchr/testify/require"
)

type writerFixture struct {
	writer   *Writer
	blocks   *store.BlockStore
	finality *store.FinalityStore
	stats    *store.StatsStore
}

func setupWriter(t *testing.T) *writerFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, migrations.RunMigrations(dbPath))

	database, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	log := logger.NewNopLogger()
	f := &writerFixture{
		blocks:   store.NewBlockStore(database, log),
		finality: store.NewFinalityStore(database, log),
		stats:    store.NewStatsStore(database, log),
	}
	f.writer = NewWriter(f.blocks, f.finality, f.stats, push.NewClient(nil, log), 30, log)

	return f
}

func testBlock(num, timestamp uint64) *store.BlockRow {
	return &store.BlockRow{
		BlockNumber: num,
		Timestamp:   timestamp,
		BlockHash:   common.BigToHash(common.Big1),
		ParentHash:  common.BigToHash(common.Big2),
		GasLimit:    30_000_000,
	}
}

func testMilestone(seq, start, end, timestamp uint64) *oracle.Milestone {
	return &oracle.Milestone{
		SequenceID:  seq,
		MilestoneID: end,
		StartBlock:  start,
		EndBlock:    end,
		Hash:        common.BigToHash(common.Big3),
		Timestamp:   timestamp,
	}
}

func TestWriter_FinalizesStoredBlocks(t *testing.T) {
	f := setupWriter(t)

	_, err := f.blocks.InsertBlocks([]*store.BlockRow{
		testBlock(100, 1000),
		testBlock(101, 1002),
		testBlock(102, 1004),
	})
	require.NoError(t, err)

	err = f.writer.WriteMilestone(context.Background(), testMilestone(1, 100, 102, 1010))
	require.NoError(t, err)

	got, err := f.blocks.GetBlock(101)
	require.NoError(t, err)
	require.True(t, got.Finalized)
	require.Equal(t, uint64(102), *got.MilestoneID)
	require.Equal(t, uint64(1010), *got.FinalizedAt)
	require.Equal(t, 8.0, *got.TimeToFinalitySec) // 1010 - 1002

	rows, err := f.finality.GetByBlocks([]uint64{100, 101, 102})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	stats, err := f.stats.Get(store.TableBlocks)
	require.NoError(t, err)
	require.Equal(t, uint64(3), stats.FinalizedCount)
	require.Equal(t, uint64(100), *stats.MinFinalized)
	require.Equal(t, uint64(102), *stats.MaxFinalized)
}

func TestWriter_MilestoneBeforeBlocks(t *testing.T) {
	f := setupWriter(t)

	// milestone lands first: finality rows exist with unknown durations
	err := f.writer.WriteMilestone(context.Background(), testMilestone(1, 200, 202, 2010))
	require.NoError(t, err)

	rows, err := f.finality.GetByBlocks([]uint64{200, 201, 202})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Nil(t, row.TimeToFinalitySec)
	}

	// the blocks arrive and reconciliation fills the durations
	_, err = f.blocks.InsertBlocks([]*store.BlockRow{
		testBlock(200, 2000),
		testBlock(201, 2002),
		testBlock(202, 2004),
	})
	require.NoError(t, err)

	require.NoError(t, f.finality.ReconcileNewBlocks([]uint64{200, 201, 202}))

	rows, err = f.finality.GetByBlocks([]uint64{200, 201, 202})
	require.NoError(t, err)
	for _, row := range rows {
		require.NotNil(t, row.TimeToFinalitySec)
	}

	got, err := f.blocks.GetBlock(200)
	require.NoError(t, err)
	require.True(t, got.Finalized)
	require.Equal(t, 10.0, *got.TimeToFinalitySec)
}

func TestWriter_ReplayFillsNullDurations(t *testing.T) {
	f := setupWriter(t)

	milestone := testMilestone(1, 300, 301, 3010)

	// first pass without blocks leaves null durations
	require.NoError(t, f.writer.WriteMilestone(context.Background(), milestone))

	_, err := f.blocks.InsertBlocks([]*store.BlockRow{
		testBlock(300, 3000),
		testBlock(301, 3002),
	})
	require.NoError(t, err)

	// replaying the same milestone is safe and completes the records
	require.NoError(t, f.writer.WriteMilestone(context.Background(), milestone))

	rows, err := f.finality.GetByBlocks([]uint64{300, 301})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotNil(t, row.TimeToFinalitySec)
	}

	// the replay finalized no new blocks, so the count reflects each
	// block exactly once
	stats, err := f.stats.Get(store.TableBlocks)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.FinalizedCount)
}

func TestWriter_InvertedRangeIsSkipped(t *testing.T) {
	f := setupWriter(t)

	err := f.writer.WriteMilestone(context.Background(), testMilestone(1, 10, 5, 1000))
	require.NoError(t, err)

	rows, err := f.finality.GetByBlocks([]uint64{5, 6, 7, 8, 9, 10})
	require.NoError(t, err)
	require.Empty(t, rows)
}
