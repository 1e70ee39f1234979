package splitwise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// MaxPageSize is the largest page get_expenses serves.
const MaxPageSize = 50

const dateRangeSeparator = ":"

var (
	// ErrInvalidDateRange is returned when a date range filter is malformed.
	ErrInvalidDateRange = errors.New("invalid date range: use YYYY-MM-DD:YYYY-MM-DD with valid ISO dates")

	// ErrInvalidGroupID is returned for a negative group filter.
	ErrInvalidGroupID = errors.New("invalid group id: must be a positive integer")
)

// Session is an authenticated handle to the Splitwise API.
type Session interface {
	CurrentUser(ctx context.Context) (*User, error)
	GetExpenses(ctx context.Context, query ExpensesQuery) ([]Expense, error)
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses "YYYY-MM-DD:YYYY-MM-DD".
func ParseDateRange(value string) (DateRange, error) {
	start, end, ok := strings.Cut(value, dateRangeSeparator)
	if !ok || strings.Contains(end, dateRangeSeparator) {
		return DateRange{}, fmt.Errorf("%w: %q", ErrInvalidDateRange, value)
	}

	startDate, err := time.Parse(time.DateOnly, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q", ErrInvalidDateRange, start)
	}
	endDate, err := time.Parse(time.DateOnly, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q", ErrInvalidDateRange, end)
	}

	return DateRange{Start: startDate, End: endDate}, nil
}

// FetchOptions filters and sizes an expense fetch.
type FetchOptions struct {
	GroupID   int64  // 0 means all groups
	DateRange string // "start:end", optional
	PageSize  int    // Default: MaxPageSize
	Logger    *slog.Logger
}

// FetchAll fetches every expense visible to the session that matches opts,
// in the order the API returns them. Filters are validated before the first
// request; an invalid filter yields no expenses and an error.
func FetchAll(ctx context.Context, session Session, opts FetchOptions) ([]Expense, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.GroupID < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGroupID, opts.GroupID)
	}

	limit := opts.PageSize
	if limit <= 0 {
		limit = MaxPageSize
	}

	base := ExpensesQuery{
		Limit:   limit,
		GroupID: opts.GroupID,
	}
	if opts.DateRange != "" {
		dr, err := ParseDateRange(opts.DateRange)
		if err != nil {
			return nil, err
		}
		base.DatedAfter = dr.Start.Format(time.DateOnly)
		base.DatedBefore = dr.End.Format(time.DateOnly)
	}

	var allExpenses []Expense
	offset := 0

	for {
		query := base
		query.Offset = offset

		logger.Debug("Fetching expense page", "offset", offset, "limit", limit)
		expenses, err := session.GetExpenses(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to list expenses (offset=%d): %w", offset, err)
		}

		if len(expenses) == 0 {
			break
		}

		allExpenses = append(allExpenses, expenses...)

		if len(expenses) < limit {
			break
		}

		offset += limit
	}

	logger.Info("Fetched expenses", "count", len(allExpenses))
	return allExpenses, nil
}
