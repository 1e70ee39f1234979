package splitwise

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Splitwise sends expense dates as RFC3339 timestamps; a few older records
// carry a bare calendar date.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// parseExpense maps a wire expense to an Expense, turning every missing or
// null field into its explicit zero value.
func parseExpense(raw apiExpense) (Expense, error) {
	exp := Expense{
		ID:           raw.ID,
		GroupID:      raw.GroupID,
		Description:  deref(raw.Description),
		Details:      deref(raw.Details),
		CurrencyCode: deref(raw.CurrencyCode),
	}

	// Splitwise uses group_id 0 for non-group expenses on some endpoints.
	if exp.GroupID != nil && *exp.GroupID == 0 {
		exp.GroupID = nil
	}

	if raw.Cost != nil {
		exp.Cost = *raw.Cost
	} else {
		exp.Cost = decimal.Zero
	}

	if raw.Date != nil && *raw.Date != "" {
		date, err := parseTimestamp(*raw.Date)
		if err != nil {
			return Expense{}, fmt.Errorf("expense %d: invalid date %q: %w", raw.ID, *raw.Date, err)
		}
		exp.Date = date
	}

	if raw.DeletedAt != nil && *raw.DeletedAt != "" {
		deletedAt, err := parseTimestamp(*raw.DeletedAt)
		if err != nil {
			return Expense{}, fmt.Errorf("expense %d: invalid deleted_at %q: %w", raw.ID, *raw.DeletedAt, err)
		}
		exp.DeletedAt = &deletedAt
	}

	if raw.DeletedBy != nil {
		user := parseUser(*raw.DeletedBy)
		exp.DeletedBy = &user
	}

	if raw.Category != nil {
		exp.Category = deref(raw.Category.Name)
	}

	if raw.Receipt != nil {
		exp.ReceiptURL = deref(raw.Receipt.Original)
	}

	return exp, nil
}

func parseUser(raw apiUser) User {
	return User{
		ID:        raw.ID,
		FirstName: deref(raw.FirstName),
		LastName:  deref(raw.LastName),
		Email:     deref(raw.Email),
	}
}

func parseTimestamp(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
