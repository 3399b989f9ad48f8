/*
Package schedule provides the payment scheduling and gap-filling engine.

PURPOSE:
  Generates the calendar-aligned due dates a lease contract should have in a
  year, compares them against payments already persisted, and creates only
  the missing ones. Schedule, Preview and FillGaps share the same candidate
  and gap computation so a preview always agrees with the commit that
  follows it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: closed set of schedulable payment categories (rent + utilities)
  - Contract: lease data read by the engine, never mutated
  - Payment: a due payment row created by the engine
  - AuditRecord: one summary entry per scheduling run that created rows

INVARIANT:
  At most one payment per (contract, category) per calendar month. The gap
  calculator is the guardian; the SQLite store backs it with a unique index.

SEE ALSO:
  - generator.go: Candidate due dates
  - gaps.go: Month sets and missing-date reconciliation
  - scheduler.go: Orchestrator (Schedule, Preview, FillGaps, Status)
  - store.go: Persistence interfaces
*/
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORY - Closed enumeration of schedulable payment types
// =============================================================================

type Category string

const (
	CategoryRent        Category = "rent"
	CategoryElectricity Category = "electricity"
	CategoryWater       Category = "water"
	CategoryGas         Category = "gas"
)

// AllCategories lists every schedulable category in reporting order.
func AllCategories() []Category {
	return []Category{CategoryRent, CategoryElectricity, CategoryWater, CategoryGas}
}

// UtilityCategories lists the categories with no lease-start floor.
func UtilityCategories() []Category {
	return []Category{CategoryElectricity, CategoryWater, CategoryGas}
}

// ParseCategory converts a wire value into a Category.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryRent, CategoryElectricity, CategoryWater, CategoryGas:
		return c, nil
	default:
		return "", &InvalidCategoryError{Value: s}
	}
}

func (c Category) IsUtility() bool {
	switch c {
	case CategoryElectricity, CategoryWater, CategoryGas:
		return true
	default:
		return false
	}
}

func (c Category) String() string { return string(c) }

// =============================================================================
// CONTRACT - Lease owned by persistence, read-only here
// =============================================================================

type ContractStatus string

const (
	ContractActive     ContractStatus = "active"
	ContractPending    ContractStatus = "pending"
	ContractTerminated ContractStatus = "terminated"
	ContractExpired    ContractStatus = "expired"
)

type Contract struct {
	ID          string
	LandlordID  string
	TenantID    string
	StartDate   Date
	EndDate     *Date
	PaymentDay  int // 1-28
	MonthlyRent decimal.Decimal
	Status      ContractStatus
	CreatedAt   time.Time
}

// =============================================================================
// PAYMENT - Due payment row created by the scheduler
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSubmitted PaymentStatus = "submitted"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentPaid      PaymentStatus = "paid"
)

type Payment struct {
	ID          string
	ContractID  string
	UserID      string // tenant, copied from the contract
	Type        Category
	Amount      decimal.Decimal
	Currency    string
	DueDate     Date
	Status      PaymentStatus
	IsAutomatic bool
	Notes       string
	CreatedAt   time.Time
}

// =============================================================================
// AUDIT - Written once per successful scheduling run
// =============================================================================

type AuditAction string

const (
	AuditRentScheduled    AuditAction = "rent_scheduled"
	AuditUtilityScheduled AuditAction = "utility_scheduled"
	AuditGapsFilled       AuditAction = "gaps_filled"
)

type AuditRecord struct {
	ID         string
	ActorID    string
	Action     AuditAction
	ContractID string
	PaymentIDs []string
	Details    map[string]any
	CreatedAt  time.Time
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a random identifier for payments, audit records and runs.
func NewID() string { return uuid.NewString() }

// runNote is the annotation stored on every payment created by a run.
func runNote(category Category, year int, runID string) string {
	return fmt.Sprintf("Scheduled %s %d (run %s)", category, year, runID)
}
