package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the history tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id             TEXT PRIMARY KEY,
		op             TEXT NOT NULL,
		status         TEXT NOT NULL,
		error_kind     TEXT NOT NULL DEFAULT '',
		error_message  TEXT NOT NULL DEFAULT '',
		http_status    INTEGER NOT NULL DEFAULT 0,
		input          TEXT NOT NULL DEFAULT '',
		image_id       TEXT NOT NULL DEFAULT '',
		image_url      TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		duration_ms    INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_records_op ON records(op)`,
	`CREATE INDEX IF NOT EXISTS idx_records_status ON records(status)`,
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
		table:    "records",
		column:   "saved_to",
		alterSQL: "ALTER TABLE records ADD COLUMN saved_to TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "records",
		column:   "credits",
		alterSQL: "ALTER TABLE records ADD COLUMN credits REAL",
	},
}

// migrate executes all schema DDL statements and alter migrations.
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
