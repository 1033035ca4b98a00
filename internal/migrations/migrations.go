package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/MilestoneIndexor/internal/db"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
)

//go:embed 001_core.sql
var mig001 string

func all() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_core.sql",
			SQL: mig001,
		},
	}
}

// RunMigrations runs all schema migrations against the database at dbPath.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, all())
}

// RunMigrationsDB runs all schema migrations against an open database.
func RunMigrationsDB(log *logger.Logger, database *sql.DB) error {
	return db.RunMigrationsDB(log, database, all())
}
