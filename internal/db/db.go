package db

import (
	"database/sql"
	"fmt"

	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
	_ "github.com/mattn/go-sqlite3"
)

// connString builds the sqlite3 driver DSN. _txlock=immediate takes the write
// lock at BEGIN, so contention surfaces as a busy-timeout wait rather than a
// failure mid-transaction.
func connString(path, journalMode string, busyTimeoutMs int, foreignKeys bool) string {
	fk := "off"
	if foreignKeys {
		fk = "on"
	}
	return fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=%s&_journal_mode=%s&_busy_timeout=%d",
		path, fk, journalMode, busyTimeoutMs,
	)
}

// NewSQLiteDB opens the database at path with the default WAL settings. Tests
// and migrations use this; the daemon opens through NewSQLiteDBFromConfig.
func NewSQLiteDB(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", connString(path, "WAL", 30000, true))
}

// NewSQLiteDBFromConfig opens the database with the configured journal mode,
// connection pool sizes, and pragmas.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	database, err := sql.Open("sqlite3",
		connString(cfg.Path, cfg.JournalMode, cfg.BusyTimeout, cfg.EnableForeignKeys))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.MaxOpenConnections)
	database.SetMaxIdleConns(cfg.MaxIdleConnections)

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	} {
		if _, err := database.Exec(pragma); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return database, nil
}
