package db

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

func TestConnString(t *testing.T) {
	got := connString("/tmp/x.db", "WAL", 5000, true)
	require.Equal(t, "file:/tmp/x.db?_txlock=immediate&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", got)

	got = connString("/tmp/x.db", "DELETE", 100, false)
	require.Contains(t, got, "_foreign_keys=off")
	require.Contains(t, got, "_journal_mode=DELETE")
}

func TestNewSQLiteDBFromConfig(t *testing.T) {
	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")}
	cfg.ApplyDefaults()

	database, err := NewSQLiteDBFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.Ping())

	var journalMode string
	require.NoError(t, database.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)
}

func TestHashMeddlerRoundTrip(t *testing.T) {
	database, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec(`CREATE TABLE hash_rows (id INTEGER PRIMARY KEY, required TEXT NOT NULL, optional TEXT)`)
	require.NoError(t, err)

	type hashRow struct {
		ID       int64        `meddler:"id,pk"`
		Required common.Hash  `meddler:"required,hash"`
		Optional *common.Hash `meddler:"optional,hash"`
	}

	h := common.BytesToHash([]byte("h1"))
	require.NoError(t, meddler.Insert(database, "hash_rows", &hashRow{Required: h, Optional: &h}))
	require.NoError(t, meddler.Insert(database, "hash_rows", &hashRow{Required: h}))

	var rows []*hashRow
	require.NoError(t, meddler.QueryAll(database, &rows, `SELECT * FROM hash_rows ORDER BY id`))
	require.Len(t, rows, 2)

	require.Equal(t, h, rows[0].Required)
	require.NotNil(t, rows[0].Optional)
	require.Equal(t, h, *rows[0].Optional)

	// a NULL column comes back as a nil pointer, not a zero hash
	require.Nil(t, rows[1].Optional)
}
