/*
scheduler.go - Scheduling orchestrator

PURPOSE:
  The only part of the engine with side effects. Ties the generator, the
  existing-schedule reader and the gap calculator together for:

    ScheduleRent / ScheduleUtility   commit a year of payments
    Preview                          same computation, no writes
    FillGaps                         single-category backfill
    Status                           per-category coverage for a year

FLOW (commit):
  1. Load contract, check ownership and status
  2. Resolve effective payment day and amount
  3. Existing months for (contract, type, year)
  4. Candidate dates from the generator
  5. Missing = candidates - existing months
  6. Create one pending, automatic payment per missing date
  7. If anything was created, write one audit record (best-effort)

  Steps 1-6 run inside Store.WithTx when the store supports transactions.
  A store-level uniqueness conflict on insert means another run got there
  first: the date is reported as skipped and the run carries on. Any other
  insert failure aborts the run.

SEE ALSO:
  - generator.go, gaps.go, reader.go
  - api/handlers.go: HTTP surface
*/
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// SkipReason is reported for every candidate whose month is already covered.
const SkipReason = "a payment already exists for this month"

// Scheduler orchestrates scheduling runs against a Store.
type Scheduler struct {
	Store    Store
	Clock    Clock
	Currency string
}

// NewScheduler creates a scheduler. A nil clock means the system clock.
func NewScheduler(store Store, clock Clock, currency string) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Scheduler{Store: store, Clock: clock, Currency: currency}
}

// DefaultCurrency is stamped on payments when none is configured.
const DefaultCurrency = "USD"

// =============================================================================
// REQUESTS & RESULTS
// =============================================================================

// RentRequest schedules a year of rent. Zero Year means the current year;
// zero PaymentDay means the contract's payment day.
type RentRequest struct {
	LandlordID string
	ContractID string
	Year       int
	PaymentDay int
}

// UtilityRequest schedules a year of one utility. Type, PaymentDay and
// Amount are required.
type UtilityRequest struct {
	LandlordID string
	ContractID string
	Type       Category
	Year       int
	PaymentDay int
	Amount     decimal.Decimal
}

// GapRequest drives Preview and FillGaps for any category. For rent, zero
// PaymentDay and nil Amount fall back to the contract.
type GapRequest struct {
	LandlordID string
	ContractID string
	Type       Category
	Year       int
	PaymentDay int
	Amount     *decimal.Decimal
}

type StatusRequest struct {
	LandlordID string
	ContractID string
	Year       int
}

type ScheduleResult struct {
	Scheduled    int
	Skipped      int
	Total        int // candidate dates in the year
	Payments     []Payment
	SkippedDates []Date
}

type PlannedPayment struct {
	DueDate Date
	Type    Category
	Amount  decimal.Decimal
}

type SkippedPayment struct {
	DueDate Date
	Reason  string
}

type PreviewResult struct {
	ContractID    string
	Type          Category
	Year          int
	PaymentDay    int
	TotalExpected int
	Existing      int
	WillCreate    int
	WillSkip      int
	ToCreate      []PlannedPayment
	ToSkip        []SkippedPayment
}

type FillResult struct {
	Filled   int
	Payments []Payment
}

type CategoryStatus struct {
	Expected      int
	Existing      int
	Missing       int
	Payments      []Payment
	MissingMonths []string
}

type StatusResult struct {
	ContractID string
	Year       int
	Types      map[Category]CategoryStatus
}

// =============================================================================
// OPERATIONS
// =============================================================================

// ScheduleRent creates the missing rent payments of a year.
func (s *Scheduler) ScheduleRent(ctx context.Context, req RentRequest) (*ScheduleResult, error) {
	out, err := s.commit(ctx, runInput{
		landlordID: req.LandlordID,
		contractID: req.ContractID,
		category:   CategoryRent,
		year:       req.Year,
		day:        req.PaymentDay,
		action:     AuditRentScheduled,
	})
	if err != nil {
		return nil, err
	}
	return out.scheduleResult(), nil
}

// ScheduleUtility creates the missing payments of one utility for a year.
func (s *Scheduler) ScheduleUtility(ctx context.Context, req UtilityRequest) (*ScheduleResult, error) {
	if !req.Type.IsUtility() {
		return nil, &FieldError{Field: "utility_type", Message: fmt.Sprintf("%q is not a utility", req.Type)}
	}
	if req.PaymentDay == 0 {
		return nil, &FieldError{Field: "payment_day", Message: "required"}
	}
	if !req.Amount.IsPositive() {
		return nil, &FieldError{Field: "amount", Message: "must be greater than 0"}
	}
	amount := req.Amount
	out, err := s.commit(ctx, runInput{
		landlordID: req.LandlordID,
		contractID: req.ContractID,
		category:   req.Type,
		year:       req.Year,
		day:        req.PaymentDay,
		amount:     &amount,
		action:     AuditUtilityScheduled,
	})
	if err != nil {
		return nil, err
	}
	return out.scheduleResult(), nil
}

// FillGaps backfills the missing months of a single category.
func (s *Scheduler) FillGaps(ctx context.Context, req GapRequest) (*FillResult, error) {
	if _, err := ParseCategory(string(req.Type)); err != nil {
		return nil, err
	}
	out, err := s.commit(ctx, runInput{
		landlordID: req.LandlordID,
		contractID: req.ContractID,
		category:   req.Type,
		year:       req.Year,
		day:        req.PaymentDay,
		amount:     req.Amount,
		action:     AuditGapsFilled,
	})
	if err != nil {
		return nil, err
	}
	return &FillResult{Filled: len(out.created), Payments: out.created}, nil
}

// Preview reports what FillGaps/Schedule would do without writing anything.
func (s *Scheduler) Preview(ctx context.Context, req GapRequest) (*PreviewResult, error) {
	if _, err := ParseCategory(string(req.Type)); err != nil {
		return nil, err
	}
	contract, err := s.schedulableContract(ctx, s.Store, req.LandlordID, req.ContractID)
	if err != nil {
		return nil, err
	}
	params, err := s.resolve(contract, req.Type, req.Year, req.PaymentDay, req.Amount)
	if err != nil {
		return nil, err
	}
	p, err := buildPlan(ctx, s.Store, contract, params)
	if err != nil {
		return nil, err
	}

	covered := CoveredDates(p.candidates, p.existing)
	result := &PreviewResult{
		ContractID:    contract.ID,
		Type:          params.category,
		Year:          params.year,
		PaymentDay:    params.day,
		TotalExpected: len(p.candidates),
		Existing:      len(p.existingPayments),
		WillCreate:    len(p.missing),
		WillSkip:      len(covered),
		ToCreate:      make([]PlannedPayment, 0, len(p.missing)),
		ToSkip:        make([]SkippedPayment, 0, len(covered)),
	}
	for _, d := range p.missing {
		result.ToCreate = append(result.ToCreate, PlannedPayment{DueDate: d, Type: params.category, Amount: params.amount})
	}
	for _, d := range covered {
		result.ToSkip = append(result.ToSkip, SkippedPayment{DueDate: d, Reason: SkipReason})
	}
	return result, nil
}

// Status reports coverage for all four categories. Utilities are measured
// against the contract's payment day; only months matter for coverage.
// Inactive contracts can still be inspected.
func (s *Scheduler) Status(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	contract, err := s.ownedContract(ctx, s.Store, req.LandlordID, req.ContractID)
	if err != nil {
		return nil, err
	}
	year := s.yearOrCurrent(req.Year)

	result := &StatusResult{
		ContractID: contract.ID,
		Year:       year,
		Types:      make(map[Category]CategoryStatus, 4),
	}
	for _, category := range AllCategories() {
		existing, payments, err := ExistingMonths(ctx, s.Store, contract.ID, category, year)
		if err != nil {
			return nil, err
		}
		candidates := CandidateDates(category, contract.StartDate, year, contract.PaymentDay)
		missing := MissingDates(candidates, existing)

		months := make([]string, 0, len(missing))
		for _, d := range missing {
			months = append(months, d.MonthKey())
		}
		if payments == nil {
			payments = []Payment{}
		}
		result.Types[category] = CategoryStatus{
			Expected:      len(candidates),
			Existing:      len(payments),
			Missing:       len(missing),
			Payments:      payments,
			MissingMonths: months,
		}
	}
	return result, nil
}

// =============================================================================
// RUN INTERNALS
// =============================================================================

type runInput struct {
	landlordID string
	contractID string
	category   Category
	year       int
	day        int
	amount     *decimal.Decimal
	action     AuditAction
}

type runParams struct {
	category Category
	year     int
	day      int
	amount   decimal.Decimal
}

type plan struct {
	params           runParams
	candidates       []Date
	existing         MonthSet
	existingPayments []Payment
	missing          []Date
}

type runOutcome struct {
	plan      *plan
	created   []Payment
	conflicts []Date
}

func (o *runOutcome) scheduleResult() *ScheduleResult {
	skipped := ExactMatches(o.plan.candidates, o.plan.existingPayments)
	skipped = append(skipped, o.conflicts...)
	return &ScheduleResult{
		Scheduled:    len(o.created),
		Skipped:      len(skipped),
		Total:        len(o.plan.candidates),
		Payments:     o.created,
		SkippedDates: skipped,
	}
}

func (s *Scheduler) commit(ctx context.Context, in runInput) (*runOutcome, error) {
	out := &runOutcome{created: []Payment{}}
	runID := NewID()
	now := s.Clock.Now()

	err := withTx(ctx, s.Store, func(store Store) error {
		contract, err := s.schedulableContract(ctx, store, in.landlordID, in.contractID)
		if err != nil {
			return err
		}
		params, err := s.resolve(contract, in.category, in.year, in.day, in.amount)
		if err != nil {
			return err
		}
		p, err := buildPlan(ctx, store, contract, params)
		if err != nil {
			return err
		}
		out.plan = p

		for _, due := range p.missing {
			payment := Payment{
				ID:          NewID(),
				ContractID:  contract.ID,
				UserID:      contract.TenantID,
				Type:        params.category,
				Amount:      params.amount,
				Currency:    s.Currency,
				DueDate:     due,
				Status:      PaymentPending,
				IsAutomatic: true,
				Notes:       runNote(params.category, params.year, runID),
				CreatedAt:   now,
			}
			if err := store.CreatePayment(ctx, payment); err != nil {
				if errors.Is(err, ErrPaymentExists) {
					out.conflicts = append(out.conflicts, due)
					continue
				}
				return fmt.Errorf("failed to create %s payment due %s: %w", params.category, due, err)
			}
			out.created = append(out.created, payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(out.created) > 0 {
		s.audit(ctx, in, runID, out)
	}
	log.Printf("[Scheduler] %s %s %d: created=%d skipped=%d total=%d",
		in.contractID, out.plan.params.category, out.plan.params.year,
		len(out.created), len(out.plan.candidates)-len(out.created), len(out.plan.candidates))
	return out, nil
}

// audit writes the run summary. Failures are logged, never returned: the
// payments are already committed.
func (s *Scheduler) audit(ctx context.Context, in runInput, runID string, out *runOutcome) {
	ids := make([]string, len(out.created))
	for i, p := range out.created {
		ids[i] = p.ID
	}
	params := out.plan.params
	rec := AuditRecord{
		ID:         NewID(),
		ActorID:    in.landlordID,
		Action:     in.action,
		ContractID: in.contractID,
		PaymentIDs: ids,
		Details: map[string]any{
			"run_id":        runID,
			"type":          string(params.category),
			"year":          params.year,
			"payment_day":   params.day,
			"amount":        params.amount.String(),
			"created":       len(out.created),
			"skipped":       len(out.plan.candidates) - len(out.created),
			"total_in_year": len(out.plan.candidates),
		},
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Store.CreateAuditRecord(ctx, rec); err != nil {
		log.Printf("[Scheduler] Failed to write audit record for run %s: %v", runID, err)
	}
}

func buildPlan(ctx context.Context, store Store, contract *Contract, params runParams) (*plan, error) {
	existing, payments, err := ExistingMonths(ctx, store, contract.ID, params.category, params.year)
	if err != nil {
		return nil, err
	}
	candidates := CandidateDates(params.category, contract.StartDate, params.year, params.day)
	return &plan{
		params:           params,
		candidates:       candidates,
		existing:         existing,
		existingPayments: payments,
		missing:          MissingDates(candidates, existing),
	}, nil
}

// resolve fills in defaults from the contract and validates what's left.
func (s *Scheduler) resolve(contract *Contract, category Category, year, day int, amount *decimal.Decimal) (runParams, error) {
	params := runParams{category: category, year: s.yearOrCurrent(year), day: day}

	switch category {
	case CategoryRent:
		if params.day == 0 {
			params.day = contract.PaymentDay
		}
		params.amount = contract.MonthlyRent
		if amount != nil {
			params.amount = *amount
		}
	case CategoryElectricity, CategoryWater, CategoryGas:
		if params.day == 0 {
			return params, &FieldError{Field: "payment_day", Message: "required for utilities"}
		}
		if amount == nil {
			return params, &FieldError{Field: "amount", Message: "required for utilities"}
		}
		params.amount = *amount
	default:
		return params, &InvalidCategoryError{Value: string(category)}
	}

	if params.day < 1 || params.day > 31 {
		return params, &FieldError{Field: "payment_day", Message: "must be between 1 and 31"}
	}
	if params.amount.IsNegative() {
		return params, &FieldError{Field: "amount", Message: "must not be negative"}
	}
	return params, nil
}

func (s *Scheduler) yearOrCurrent(year int) int {
	if year == 0 {
		return s.Clock.Now().Year()
	}
	return year
}

func (s *Scheduler) ownedContract(ctx context.Context, store Store, landlordID, contractID string) (*Contract, error) {
	contract, err := store.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.LandlordID != landlordID {
		return nil, ErrContractNotFound
	}
	return contract, nil
}

func (s *Scheduler) schedulableContract(ctx context.Context, store Store, landlordID, contractID string) (*Contract, error) {
	contract, err := s.ownedContract(ctx, store, landlordID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != ContractActive {
		return nil, ErrContractNotActive
	}
	return contract, nil
}
