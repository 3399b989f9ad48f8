package schedule

import (
	"context"
	"fmt"
)

// ExistingMonths loads the payments of contractID/category due in year and
// reduces them to their month tokens. The payments are returned as well so
// callers can report on them without a second query.
func ExistingMonths(ctx context.Context, store Store, contractID string, category Category, year int) (MonthSet, []Payment, error) {
	payments, err := store.FindPayments(ctx, PaymentFilter{
		ContractID: contractID,
		Type:       category,
		DueFrom:    StartOfYear(year),
		DueTo:      EndOfYear(year),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s payments for %d: %w", category, year, err)
	}
	return MonthsOf(payments), payments, nil
}
