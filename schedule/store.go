/*
store.go - Persistence interface for contracts, payments and audit records

PURPOSE:
  Defines what the scheduler needs from the database. The engine reads
  contracts, reads payments by contract/type/due-date range, creates
  payments and writes audit records. Nothing else.

TRANSACTIONS:
  TxStore adds WithTx. When the store supports it, the scheduler runs the
  read-reconcile-write sequence of a run inside one transaction so two
  concurrent runs cannot both observe the same gap.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with a unique (contract, type, month) index
  - schedule/store/memory.go: In-memory for tests

SEE ALSO:
  - scheduler.go: The only caller
  - reader.go: Existing-schedule reads
*/
package schedule

import "context"

// =============================================================================
// STORE
// =============================================================================

// PaymentFilter selects payments. Zero-valued fields are ignored.
type PaymentFilter struct {
	ContractID string
	UserID     string
	Type       Category
	Status     PaymentStatus
	DueFrom    Date // inclusive
	DueTo      Date // inclusive
}

// Store is the persistence contract required by the scheduler.
type Store interface {
	// FindContractByID returns ErrContractNotFound when missing.
	FindContractByID(ctx context.Context, id string) (*Contract, error)

	// FindPayments returns payments matching filter, ordered by due date.
	FindPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)

	// CreatePayment persists one payment. Stores that enforce the monthly
	// uniqueness invariant return an error wrapping ErrPaymentExists.
	CreatePayment(ctx context.Context, p Payment) error

	CreateAuditRecord(ctx context.Context, rec AuditRecord) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// withTx runs fn inside a transaction when store supports it, directly otherwise.
func withTx(ctx context.Context, store Store, fn func(Store) error) error {
	if ts, ok := store.(TxStore); ok {
		return ts.WithTx(ctx, fn)
	}
	return fn(store)
}
