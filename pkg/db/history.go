package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReceiptStatus is the outcome of a receipt download.
type ReceiptStatus string

const (
	ReceiptDownloaded ReceiptStatus = "downloaded"
	ReceiptFailed     ReceiptStatus = "failed"
)

// ExportRun represents one export run.
type ExportRun struct {
	ID                 string
	StartedAt          time.Time
	FinishedAt         time.Time
	OutputPath         string
	Format             string
	GroupID            sql.NullInt64
	DateRange          string
	ExpensesFetched    int
	ReceiptsDownloaded int
	ReceiptsFailed     int
	RowsExported       int
}

// ReceiptRecord represents the outcome of one receipt in a run.
type ReceiptRecord struct {
	ExpenseID int64
	URL       string
	LocalPath string
	Status    ReceiptStatus
	Error     string
}

// History manages export history operations.
type History struct {
	conn *Connection
}

// NewHistory creates a new History instance.
func NewHistory(conn *Connection) *History {
	return &History{conn: conn}
}

// RecordRun stores a run and its receipt outcomes atomically.
func (h *History) RecordRun(ctx context.Context, run ExportRun, receipts []ReceiptRecord) error {
	if run.ID == "" {
		return errors.New("failed to record run: run ID is empty")
	}

	return h.conn.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO export_runs (
				id, started_at, finished_at, output_path, format, group_id, date_range,
				expenses_fetched, receipts_downloaded, receipts_failed, rows_exported
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			run.StartedAt.UTC(),
			run.FinishedAt.UTC(),
			run.OutputPath,
			run.Format,
			run.GroupID,
			run.DateRange,
			run.ExpensesFetched,
			run.ReceiptsDownloaded,
			run.ReceiptsFailed,
			run.RowsExported,
		)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO receipt_downloads (run_id, expense_id, url, local_path, status, error)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare receipt insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range receipts {
			if _, err := stmt.ExecContext(ctx, run.ID, r.ExpenseID, r.URL, r.LocalPath, string(r.Status), r.Error); err != nil {
				return fmt.Errorf("failed to record receipt for expense %d: %w", r.ExpenseID, err)
			}
		}

		return nil
	})
}

// ListRuns returns the most recent runs, newest first.
func (h *History) ListRuns(ctx context.Context, limit int) ([]ExportRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := h.conn.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, output_path, format, group_id, date_range,
			expenses_fetched, receipts_downloaded, receipts_failed, rows_exported
		FROM export_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []ExportRun
	for rows.Next() {
		var run ExportRun
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.OutputPath,
			&run.Format,
			&run.GroupID,
			&run.DateRange,
			&run.ExpensesFetched,
			&run.ReceiptsDownloaded,
			&run.ReceiptsFailed,
			&run.RowsExported,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// GetReceiptRecords returns the receipt outcomes of a run by expense ID.
func (h *History) GetReceiptRecords(ctx context.Context, runID string) ([]ReceiptRecord, error) {
	rows, err := h.conn.db.QueryContext(ctx, `
		SELECT expense_id, url, local_path, status, error
		FROM receipt_downloads
		WHERE run_id = ?
		ORDER BY expense_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt records: %w", err)
	}
	defer rows.Close()

	var records []ReceiptRecord
	for rows.Next() {
		var record ReceiptRecord
		var status string
		if err := rows.Scan(&record.ExpenseID, &record.URL, &record.LocalPath, &status, &record.Error); err != nil {
			return nil, fmt.Errorf("failed to scan receipt record: %w", err)
		}
		record.Status = ReceiptStatus(status)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get receipt records: %w", err)
	}

	return records, nil
}

// Stats represents export statistics.
type Stats struct {
	TotalRuns          int
	TotalRowsExported  int
	ReceiptsDownloaded int
	ReceiptsFailed     int
	LastExport         sql.NullString
}

// GetStats retrieves export statistics across all runs.
func (h *History) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats

	err := h.conn.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(rows_exported), 0) FROM export_runs
	`).Scan(&stats.TotalRuns, &stats.TotalRowsExported)
	if err != nil {
		return nil, fmt.Errorf("failed to get run counts: %w", err)
	}

	err = h.conn.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'downloaded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM receipt_downloads
	`).Scan(&stats.ReceiptsDownloaded, &stats.ReceiptsFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt counts: %w", err)
	}

	err = h.conn.db.QueryRowContext(ctx, `SELECT MAX(finished_at) FROM export_runs`).Scan(&stats.LastExport)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last export time: %w", err)
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value.
func (h *History) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := h.conn.db.QueryRowContext(ctx, `SELECT value FROM export_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (h *History) SetMetadata(ctx context.Context, key, value string) error {
	_, err := h.conn.db.ExecContext(ctx, `
		INSERT INTO export_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	return nil
}
