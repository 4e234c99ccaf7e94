package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all uthreads tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		scenario       TEXT NOT NULL,
		state          TEXT NOT NULL DEFAULT 'RUNNING',
		quantum_ns     INTEGER NOT NULL,
		max_threads    INTEGER NOT NULL,
		threads        INTEGER NOT NULL DEFAULT 0,
		total_quantums INTEGER NOT NULL DEFAULT 0,
		started_at     TEXT NOT NULL,
		finished_at    TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq      INTEGER NOT NULL,
		kind     TEXT NOT NULL,
		tid      INTEGER NOT NULL,
		peer     INTEGER NOT NULL DEFAULT -1,
		total    INTEGER NOT NULL,
		quantums INTEGER NOT NULL DEFAULT 0,
		reason   TEXT NOT NULL DEFAULT '',
		at       TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_run_kind ON events(run_id, kind)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "runs",
		column:   "dropped_events",
		alterSQL: "ALTER TABLE runs ADD COLUMN dropped_events INTEGER NOT NULL DEFAULT 0",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}
	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
