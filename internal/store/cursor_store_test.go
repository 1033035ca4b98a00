package store

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/stretchr/testify/require"
)

func TestCursorStore_SaveAndGet(t *testing.T) {
	store := NewCursorStore(setupTestDB(t), logger.NewNopLogger())

	cursor, err := store.Get(ServiceBlockIndexer)
	require.NoError(t, err)
	require.Nil(t, cursor)

	hash := common.HexToHash("0xabc")
	require.NoError(t, store.Save(ServiceBlockIndexer, 100, &hash))

	cursor, err = store.Get(ServiceBlockIndexer)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	require.Equal(t, uint64(100), cursor.LastPosition)
	require.NotNil(t, cursor.LastHash)
	require.Equal(t, hash, *cursor.LastHash)

	// upsert replaces, including dropping the hash
	require.NoError(t, store.Save(ServiceBlockIndexer, 150, nil))

	cursor, err = store.Get(ServiceBlockIndexer)
	require.NoError(t, err)
	require.Equal(t, uint64(150), cursor.LastPosition)
	require.Nil(t, cursor.LastHash)
}

func TestCursorStore_SaveTxFollowsTransaction(t *testing.T) {
	database := setupTestDB(t)
	store := NewCursorStore(database, logger.NewNopLogger())

	// a rolled-back transaction leaves no cursor behind
	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.SaveTx(tx, ServiceBlockIndexer, 100, nil))
	require.NoError(t, tx.Rollback())

	cursor, err := store.Get(ServiceBlockIndexer)
	require.NoError(t, err)
	require.Nil(t, cursor)

	// a committed one persists, hash included
	hash := common.HexToHash("0xdef")
	tx, err = database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.SaveTx(tx, ServiceBlockIndexer, 99, &hash))
	require.NoError(t, tx.Commit())

	cursor, err = store.Get(ServiceBlockIndexer)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	require.Equal(t, uint64(99), cursor.LastPosition)
	require.NotNil(t, cursor.LastHash)
	require.Equal(t, hash, *cursor.LastHash)
}

func TestCursorStore_ServicesAreIndependent(t *testing.T) {
	store := NewCursorStore(setupTestDB(t), logger.NewNopLogger())

	require.NoError(t, store.Save(ServiceBlockIndexer, 100, nil))
	require.NoError(t, store.Save(ServiceMilestoneIndexer, 42, nil))

	cursor, err := store.Get(ServiceMilestoneIndexer)
	require.NoError(t, err)
	require.Equal(t, uint64(42), cursor.LastPosition)

	cursor, err = store.Get(ServiceBlockIndexer)
	require.NoError(t, err)
	require.Equal(t, uint64(100), cursor.LastPosition)
}
