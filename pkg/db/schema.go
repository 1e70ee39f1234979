// Package db records export runs and receipt outcomes in SQLite. The history
// is an audit log; the pipeline never reads it to decide what to export.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- One row per export run
CREATE TABLE IF NOT EXISTS export_runs (
    id TEXT PRIMARY KEY,                    -- UUID
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    output_path TEXT NOT NULL,
    format TEXT NOT NULL,                   -- 'csv' or 'xlsx'
    group_id INTEGER,                       -- group filter, NULL for all
    date_range TEXT NOT NULL DEFAULT '',    -- start:end filter
    expenses_fetched INTEGER NOT NULL,
    receipts_downloaded INTEGER NOT NULL,
    receipts_failed INTEGER NOT NULL,
    rows_exported INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_export_runs_started
    ON export_runs(started_at);

-- Outcome of every receipt attempted in a run
CREATE TABLE IF NOT EXISTS receipt_downloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES export_runs(id) ON DELETE CASCADE,
    expense_id INTEGER NOT NULL,
    url TEXT NOT NULL,
    local_path TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,                   -- 'downloaded' or 'failed'
    error TEXT NOT NULL DEFAULT '',
    UNIQUE(run_id, expense_id)
);

CREATE INDEX IF NOT EXISTS idx_receipt_downloads_expense
    ON receipt_downloads(expense_id);

-- Key-value metadata about exports
CREATE TABLE IF NOT EXISTS export_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.db.Exec(Schema); err != nil {
		return err
	}
	return nil
}
