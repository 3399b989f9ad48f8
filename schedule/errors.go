/*
errors.go - Centralized error types for the scheduling engine

ERROR CATEGORIES:
  1. Contract errors - missing, not owned, or not schedulable
  2. Validation errors - malformed scheduling input reaching the engine
  3. Store errors - persistence failures and uniqueness conflicts

USAGE:
  if errors.Is(err, schedule.ErrContractNotFound) {
      // 404 CONTRACT_NOT_FOUND
  }

SEE ALSO:
  - scheduler.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrContractNotFound covers both a missing contract and one that belongs
	// to a different landlord. Callers must not be able to tell them apart.
	ErrContractNotFound = errors.New("contract not found")

	// ErrContractNotActive is returned before any payment is read or written.
	ErrContractNotActive = errors.New("only active contracts can be scheduled")

	// ErrInvalidInput is the parent of every engine-side validation failure.
	ErrInvalidInput = errors.New("invalid scheduling input")

	// ErrPaymentExists is returned by stores that enforce one payment per
	// (contract, type, month). The scheduler treats it as "already scheduled".
	ErrPaymentExists = errors.New("payment already exists for this month")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidCategoryError is returned for an unknown payment type string.
type InvalidCategoryError struct {
	Value string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid payment type %q (want rent, electricity, water or gas)", e.Value)
}

func (e *InvalidCategoryError) Unwrap() error { return ErrInvalidInput }

// FieldError names the request field the engine rejected.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrInvalidInput }

// DuplicatePaymentError identifies the month that already has a payment.
type DuplicatePaymentError struct {
	ContractID string
	Type       Category
	Month      string
}

func (e *DuplicatePaymentError) Error() string {
	return fmt.Sprintf("%s payment for contract %s already exists in %s", e.Type, e.ContractID, e.Month)
}

func (e *DuplicatePaymentError) Unwrap() error { return ErrPaymentExists }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) || errors.Is(err, ErrPaymentNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// or a contract state the client can fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrContractNotActive)
}
