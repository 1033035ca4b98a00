package worker

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/goran-ethernal/MilestoneIndexor/internal/db"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/migrations"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/stretchr/testify/require"
)

func TestStatusRegistry_SetAndSnapshot(t *testing.T) {
	r := NewStatusRegistry()
	require.False(t, r.AnyActive())

	r.Set("block_indexer", StateRunning)
	r.Set("milestone_indexer", StateIdle)

	require.True(t, r.AnyActive())

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 2)
	require.Equal(t, StateRunning, snapshot["block_indexer"].State)
	require.Equal(t, StateIdle, snapshot["milestone_indexer"].State)
	require.False(t, snapshot["block_indexer"].UpdatedAt.IsZero())
}

func TestStatusRegistry_SetErrorKeepsWorkerInactive(t *testing.T) {
	r := NewStatusRegistry()

	r.SetError("block_indexer", errors.New("rpc pool exhausted"))
	require.False(t, r.AnyActive())

	status := r.Snapshot()["block_indexer"]
	require.Equal(t, StateError, status.State)
	require.Equal(t, "rpc pool exhausted", status.LastError)
	require.False(t, status.LastErrorAt.IsZero())

	// recovering clears activity but keeps the last error for inspection
	r.Set("block_indexer", StateRunning)
	require.True(t, r.AnyActive())

	status = r.Snapshot()["block_indexer"]
	require.Equal(t, StateRunning, status.State)
	require.Equal(t, "rpc pool exhausted", status.LastError)
}

func TestStatusRegistry_StoppedWorkersAreNotActive(t *testing.T) {
	r := NewStatusRegistry()

	r.Set("block_indexer", StateRunning)
	r.Set("block_indexer", StateStopped)
	require.False(t, r.AnyActive())
}

func TestStatusRegistry_Persist(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, migrations.RunMigrations(dbPath))

	database, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	log := logger.NewNopLogger()
	statusStore := store.NewStatusStore(database, log)

	r := NewStatusRegistry()
	r.Set("block_indexer", StateIdle)
	r.SetError("fee_backfiller", errors.New("window stalled"))
	r.persist(statusStore, log)

	rows, err := statusStore.All()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byName := make(map[string]*store.WorkerStatusRow, len(rows))
	for _, row := range rows {
		byName[row.WorkerName] = row
	}

	require.Equal(t, "idle", byName["block_indexer"].State)
	require.Nil(t, byName["block_indexer"].LastError)

	require.Equal(t, "error", byName["fee_backfiller"].State)
	require.NotNil(t, byName["fee_backfiller"].LastError)
	require.Equal(t, "window stalled", *byName["fee_backfiller"].LastError)
}
