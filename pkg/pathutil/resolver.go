// Package pathutil provides centralized path management for the export file,
// the receipts directory and the history database.
package pathutil

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultReceiptExt is used when a receipt URL path has no extension.
const DefaultReceiptExt = ".jpg"

// PathResolver manages paths for receipts, the export file and the database.
type PathResolver struct {
	receiptsDir  string
	databasePath string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// ReceiptsDir is the directory downloaded receipts are written to (e.g., ./receipts)
	ReceiptsDir string
	// DatabasePath is the path to the SQLite database file for export history
	DatabasePath string
}

// New creates a new PathResolver with the given configuration.
// If ReceiptsDir is empty, it defaults to ./receipts
// If DatabasePath is empty, it defaults to {ReceiptsDir}/../.splitwise-export/history.db
func New(config Config) *PathResolver {
	receiptsDir := config.ReceiptsDir
	if receiptsDir == "" {
		receiptsDir = "receipts"
	}

	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(filepath.Dir(filepath.Clean(receiptsDir)), ".splitwise-export", "history.db")
	}

	return &PathResolver{
		receiptsDir:  receiptsDir,
		databasePath: dbPath,
	}
}

// GetReceiptsDir returns the receipts directory.
func (p *PathResolver) GetReceiptsDir() string {
	return p.receiptsDir
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetReceiptPath returns the local path for an expense's receipt.
// Example: receipts/receipt_42.PNG
func (p *PathResolver) GetReceiptPath(expenseID int64, receiptURL string) string {
	return filepath.Join(p.receiptsDir, ReceiptFilename(expenseID, receiptURL))
}

// ReceiptFilename derives "receipt_<id><ext>" from the URL path's extension.
// The query string and fragment never contribute to the extension.
func ReceiptFilename(expenseID int64, receiptURL string) string {
	return fmt.Sprintf("receipt_%d%s", expenseID, receiptExt(receiptURL))
}

func receiptExt(receiptURL string) string {
	urlPath := receiptURL
	if u, err := url.Parse(receiptURL); err == nil {
		// Escaped form: "img%2Epng" has no extension.
		urlPath = u.EscapedPath()
	} else if i := strings.IndexAny(urlPath, "?#"); i >= 0 {
		urlPath = urlPath[:i]
	}

	ext := path.Ext(urlPath)
	if ext == "" || ext == "." || strings.ContainsAny(ext, `\/`) {
		return DefaultReceiptExt
	}
	return ext
}

// IsCSV reports whether an output path selects CSV output.
func IsCSV(outputPath string) bool {
	return strings.HasSuffix(strings.ToLower(outputPath), ".csv")
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// FileExists checks if a regular file exists.
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	return err == nil && info.Mode().IsRegular()
}
