// Package spreadsheet renders expenses to CSV or XLSX, one row per expense.
package spreadsheet

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/splitwise-export/pkg/pathutil"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/splitwise"
)

// Header lists the export columns in order.
var Header = []string{
	"Expense ID",
	"Group ID",
	"Description",
	"Details",
	"Cost",
	"Currency",
	"Date",
	"Deleted",
	"Deleted By",
	"Notes",
	"Receipt",
}

// ReceiptLinkLabel is the display text of CSV receipt hyperlinks.
const ReceiptLinkLabel = "View Receipt"

// Row is the export projection of one expense.
type Row struct {
	ExpenseID   int64
	GroupID     *int64
	Description string
	Details     string
	Cost        string
	Currency    string
	Date        string
	Deleted     bool
	DeletedBy   string
	Notes       string
	// Receipt is the rendered receipt cell. For CSV it is either empty or a
	// hyperlink formula; for XLSX it is a local path or the remote URL.
	Receipt string
	// ReceiptIsLink marks Receipt as the hyperlink formula built by BuildRow.
	ReceiptIsLink bool
}

// Format selects the output encoding.
type Format int

const (
	FormatCSV Format = iota
	FormatXLSX
)

func (f Format) String() string {
	if f == FormatCSV {
		return "csv"
	}
	return "xlsx"
}

// FormatFor picks the format from the output file suffix.
func FormatFor(outputPath string) Format {
	if pathutil.IsCSV(outputPath) {
		return FormatCSV
	}
	return FormatXLSX
}

// BuildRow projects an expense and its optional local receipt path.
func BuildRow(exp splitwise.Expense, receiptPath string, format Format) Row {
	row := Row{
		ExpenseID:   exp.ID,
		GroupID:     exp.GroupID,
		Description: exp.Description,
		Details:     exp.Category,
		Cost:        formatCost(exp.Cost),
		Currency:    exp.CurrencyCode,
		Date:        formatDate(exp.Date),
		Deleted:     exp.IsDeleted(),
		Notes:       exp.Details,
	}
	if exp.DeletedBy != nil {
		row.DeletedBy = exp.DeletedBy.DisplayName()
	}

	switch format {
	case FormatCSV:
		// A formula is only built for a receipt that is actually on disk.
		if receiptPath != "" && pathutil.FileExists(receiptPath) {
			row.Receipt = hyperlinkFormula(receiptPath)
			row.ReceiptIsLink = true
		}
	default:
		if receiptPath != "" {
			row.Receipt = absPath(receiptPath)
		} else {
			// Remote URLs may expire; CSV leaves the cell blank instead.
			row.Receipt = exp.ReceiptURL
		}
	}

	return row
}

// CSVRecord renders the row as CSV fields. Free-text fields are guarded
// against formula injection; the receipt hyperlink the writer built is not.
func (r Row) CSVRecord() []string {
	return []string{
		strconv.FormatInt(r.ExpenseID, 10),
		optionalInt(r.GroupID),
		SanitizeCell(r.Description),
		SanitizeCell(r.Details),
		r.Cost,
		SanitizeCell(r.Currency),
		r.Date,
		boolCell(r.Deleted),
		SanitizeCell(r.DeletedBy),
		SanitizeCell(r.Notes),
		r.csvReceipt(),
	}
}

func (r Row) csvReceipt() string {
	if r.ReceiptIsLink {
		return r.Receipt
	}
	return SanitizeCell(r.Receipt)
}

// XLSXValues renders the row as typed cell values.
func (r Row) XLSXValues() []any {
	var groupID any
	if r.GroupID != nil {
		groupID = *r.GroupID
	}
	return []any{
		r.ExpenseID,
		groupID,
		r.Description,
		r.Details,
		r.Cost,
		r.Currency,
		r.Date,
		r.Deleted,
		r.DeletedBy,
		r.Notes,
		r.Receipt,
	}
}

// SanitizeCell prefixes a single quote to values a spreadsheet would
// evaluate as a formula.
func SanitizeCell(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '+', '-', '@':
		return "'" + value
	}
	return value
}

// hyperlinkFormula links to the receipt through a percent-encoded file URL,
// so '#', '?' and '%' in the path stay part of it.
func hyperlinkFormula(receiptPath string) string {
	target := (&url.URL{Scheme: "file", Path: filepath.ToSlash(absPath(receiptPath))}).String()
	return fmt.Sprintf(`=HYPERLINK("%s", "%s")`, escapeFormulaString(target), ReceiptLinkLabel)
}

func escapeFormulaString(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// formatCost keeps the scale the API sent ("12.50" stays "12.50").
func formatCost(cost decimal.Decimal) string {
	if exp := cost.Exponent(); exp < 0 {
		return cost.StringFixed(-exp)
	}
	return cost.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func optionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
