// Package splitwise provides a Splitwise API client, session providers and
// the paginated expense fetcher.
package splitwise

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Expense is one Splitwise expense as used by the export pipeline.
// Optional remote fields are explicit: pointers for values that may be absent,
// empty strings for text that may be null.
type Expense struct {
	ID           int64
	GroupID      *int64
	Description  string
	Details      string
	Cost         decimal.Decimal
	CurrencyCode string
	Date         time.Time
	DeletedAt    *time.Time
	DeletedBy    *User
	Category     string
	ReceiptURL   string
}

// IsDeleted reports whether the expense carries a deletion timestamp.
func (e Expense) IsDeleted() bool {
	return e.DeletedAt != nil
}

// HasReceipt reports whether the expense has a remote receipt attached.
func (e Expense) HasReceipt() bool {
	return e.ReceiptURL != ""
}

// User is a Splitwise user.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
}

// DisplayName returns "First Last", or whichever part is set.
func (u User) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// ExpensesQuery holds the parameters of one get_expenses request.
type ExpensesQuery struct {
	Offset      int
	Limit       int
	GroupID     int64  // 0 means all groups
	DatedAfter  string // YYYY-MM-DD, optional
	DatedBefore string // YYYY-MM-DD, optional
}

// apiExpense is the wire shape of an expense in get_expenses responses.
type apiExpense struct {
	ID           int64            `json:"id"`
	GroupID      *int64           `json:"group_id"`
	Description  *string          `json:"description"`
	Details      *string          `json:"details"`
	Cost         *decimal.Decimal `json:"cost"`
	CurrencyCode *string          `json:"currency_code"`
	Date         *string          `json:"date"`
	DeletedAt    *string          `json:"deleted_at"`
	DeletedBy    *apiUser         `json:"deleted_by"`
	Category     *apiCategory     `json:"category"`
	Receipt      *apiReceipt      `json:"receipt"`
}

type apiUser struct {
	ID        int64   `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
}

type apiCategory struct {
	ID   int64   `json:"id"`
	Name *string `json:"name"`
}

type apiReceipt struct {
	Large    *string `json:"large"`
	Original *string `json:"original"`
}

// expensesResponse represents the response from /get_expenses.
type expensesResponse struct {
	Expenses []apiExpense `json:"expenses"`
}

// currentUserResponse represents the response from /get_current_user.
type currentUserResponse struct {
	User apiUser `json:"user"`
}

// errorResponse covers both error shapes Splitwise returns.
type errorResponse struct {
	Error  string `json:"error"`
	Errors struct {
		Base []string `json:"base"`
	} `json:"errors"`
}
