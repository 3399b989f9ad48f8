package schedule_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rent-scheduler/schedule"
	"github.com/warp/rent-scheduler/schedule/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	landlordID = "landlord-1"
	tenantID   = "tenant-1"
)

var testClock = schedule.FixedClock{At: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}

func testContract(id, start string, day int, rent int64) schedule.Contract {
	return schedule.Contract{
		ID:          id,
		LandlordID:  landlordID,
		TenantID:    tenantID,
		StartDate:   schedule.MustParseDate(start),
		PaymentDay:  day,
		MonthlyRent: decimal.NewFromInt(rent),
		Status:      schedule.ContractActive,
	}
}

func newTestScheduler(t *testing.T, contracts ...schedule.Contract) (*schedule.Scheduler, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	for _, c := range contracts {
		require.NoError(t, mem.SaveContract(context.Background(), c))
	}
	return schedule.NewScheduler(mem, testClock, ""), mem
}

func paymentsOf(t *testing.T, s schedule.Store, contractID string, category schedule.Category) []schedule.Payment {
	t.Helper()
	ps, err := s.FindPayments(context.Background(), schedule.PaymentFilter{ContractID: contractID, Type: category})
	require.NoError(t, err)
	return ps
}

func assertDistinctMonths(t *testing.T, ps []schedule.Payment) {
	t.Helper()
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		key := p.DueDate.MonthKey()
		assert.False(t, seen[key], "duplicate payment in %s", key)
		seen[key] = true
	}
}

// =============================================================================
// SCHEDULE RENT
// =============================================================================

func TestScheduleRent_FirstLeaseYear(t *testing.T) {
	// GIVEN: A lease starting 2024-03-10 with rent due on the 5th
	contract := testContract("c-1", "2024-03-10", 5, 1000)
	s, mem := newTestScheduler(t, contract)

	// WHEN: Scheduling 2024
	res, err := s.ScheduleRent(context.Background(), schedule.RentRequest{
		LandlordID: landlordID,
		ContractID: "c-1",
		Year:       2024,
	})
	require.NoError(t, err)

	// THEN: April through December, March 5 being before the lease
	assert.Equal(t, 9, res.Scheduled)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 9, res.Total)
	assert.Empty(t, res.SkippedDates)
	require.Len(t, res.Payments, 9)
	assert.Equal(t, "2024-04-05", res.Payments[0].DueDate.String())
	assert.Equal(t, "2024-12-05", res.Payments[8].DueDate.String())

	for _, p := range res.Payments {
		assert.True(t, p.Amount.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, schedule.PaymentPending, p.Status)
		assert.True(t, p.IsAutomatic)
		assert.Equal(t, tenantID, p.UserID)
		assert.Equal(t, schedule.DefaultCurrency, p.Currency)
		assert.True(t, strings.HasPrefix(p.Notes, "Scheduled rent 2024 (run "))
	}
	assert.Len(t, paymentsOf(t, mem, "c-1", schedule.CategoryRent), 9)
}

func TestScheduleRent_DefaultsYearFromClock(t *testing.T) {
	s, _ := newTestScheduler(t, testContract("c-1", "2020-01-01", 1, 900))

	res, err := s.ScheduleRent(context.Background(), schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1"})
	require.NoError(t, err)

	require.Len(t, res.Payments, 12)
	assert.Equal(t, 2025, res.Payments[0].DueDate.Year())
}

func TestScheduleRent_PaymentDayOverride(t *testing.T) {
	s, _ := newTestScheduler(t, testContract("c-1", "2020-01-01", 1, 900))

	res, err := s.ScheduleRent(context.Background(), schedule.RentRequest{
		LandlordID: landlordID,
		ContractID: "c-1",
		Year:       2025,
		PaymentDay: 31,
	})
	require.NoError(t, err)

	assert.Equal(t, "2025-02-28", res.Payments[1].DueDate.String())
	assert.Equal(t, "2025-04-30", res.Payments[3].DueDate.String())
}

func TestScheduleRent_SecondRunCreatesNothing(t *testing.T) {
	// GIVEN: A year already scheduled
	s, mem := newTestScheduler(t, testContract("c-1", "2020-01-01", 5, 1000))
	ctx := context.Background()
	req := schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2025}

	_, err := s.ScheduleRent(ctx, req)
	require.NoError(t, err)

	// WHEN: Scheduling the same year again
	res, err := s.ScheduleRent(ctx, req)
	require.NoError(t, err)

	// THEN: Every candidate is reported as skipped and nothing is written
	assert.Equal(t, 0, res.Scheduled)
	assert.Equal(t, 12, res.Skipped)
	assert.Len(t, res.SkippedDates, 12)
	assert.Empty(t, res.Payments)
	assert.Len(t, paymentsOf(t, mem, "c-1", schedule.CategoryRent), 12)

	// Only the first run is audited
	assert.Len(t, mem.AuditRecords(), 1)

	// And a preview agrees
	preview, err := s.Preview(ctx, schedule.GapRequest{
		LandlordID: landlordID,
		ContractID: "c-1",
		Type:       schedule.CategoryRent,
		Year:       2025,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, preview.WillCreate)
	assert.Equal(t, 12, preview.WillSkip)
}

func TestScheduleRent_MonthCoveredByOtherDay(t *testing.T) {
	// GIVEN: A manual March payment on the 20th
	s, mem := newTestScheduler(t, testContract("c-1", "2020-01-01", 5, 1000))
	ctx := context.Background()
	require.NoError(t, mem.CreatePayment(ctx, schedule.Payment{
		ID:         "manual",
		ContractID: "c-1",
		Type:       schedule.CategoryRent,
		DueDate:    schedule.MustParseDate("2025-03-20"),
		Status:     schedule.PaymentPaid,
	}))

	// WHEN: Scheduling rent on the 5th
	res, err := s.ScheduleRent(ctx, schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2025})
	require.NoError(t, err)

	// THEN: March is not scheduled again
	assert.Equal(t, 11, res.Scheduled)
	for _, p := range res.Payments {
		assert.NotEqual(t, time.March, p.DueDate.Month())
	}
	// The reported skip list only contains exact date matches
	assert.Empty(t, res.SkippedDates)
	assertDistinctMonths(t, paymentsOf(t, mem, "c-1", schedule.CategoryRent))
}

func TestScheduleRent_WritesAuditRecord(t *testing.T) {
	s, mem := newTestScheduler(t, testContract("c-1", "2024-06-15", 1, 750))

	res, err := s.ScheduleRent(context.Background(), schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2024})
	require.NoError(t, err)

	records := mem.AuditRecords()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, schedule.AuditRentScheduled, rec.Action)
	assert.Equal(t, landlordID, rec.ActorID)
	assert.Equal(t, "c-1", rec.ContractID)
	assert.Len(t, rec.PaymentIDs, res.Scheduled)
	assert.Equal(t, "rent", rec.Details["type"])
	assert.Equal(t, 2024, rec.Details["year"])
	assert.Equal(t, 1, rec.Details["payment_day"])
	assert.Equal(t, 6, rec.Details["created"])
	assert.Equal(t, 0, rec.Details["skipped"])
	assert.Equal(t, 6, rec.Details["total_in_year"])
	assert.Equal(t, testClock.At, rec.CreatedAt)
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

func TestSchedule_ContractNotFound(t *testing.T) {
	s, _ := newTestScheduler(t, testContract("c-1", "2020-01-01", 1, 500))
	ctx := context.Background()

	_, err := s.ScheduleRent(ctx, schedule.RentRequest{LandlordID: landlordID, ContractID: "missing"})
	assert.ErrorIs(t, err, schedule.ErrContractNotFound)

	// Someone else's contract looks exactly like a missing one
	_, err = s.ScheduleRent(ctx, schedule.RentRequest{LandlordID: "landlord-2", ContractID: "c-1"})
	assert.ErrorIs(t, err, schedule.ErrContractNotFound)

	_, err = s.Status(ctx, schedule.StatusRequest{LandlordID: "landlord-2", ContractID: "c-1"})
	assert.ErrorIs(t, err, schedule.ErrContractNotFound)
}

func TestSchedule_ContractNotActive(t *testing.T) {
	contract := testContract("c-1", "2020-01-01", 1, 500)
	contract.Status = schedule.ContractTerminated
	s, mem := newTestScheduler(t, contract)
	ctx := context.Background()

	_, err := s.ScheduleRent(ctx, schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1"})
	require.ErrorIs(t, err, schedule.ErrContractNotActive)
	assert.EqualError(t, err, "only active contracts can be scheduled")

	_, err = s.Preview(ctx, schedule.GapRequest{LandlordID: landlordID, ContractID: "c-1", Type: schedule.CategoryRent})
	assert.ErrorIs(t, err, schedule.ErrContractNotActive)

	assert.Empty(t, paymentsOf(t, mem, "c-1", schedule.CategoryRent))

	// Status still works for inactive contracts
	status, err := s.Status(ctx, schedule.StatusRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 12, status.Types[schedule.CategoryRent].Missing)
}

// =============================================================================
// UTILITIES & FILL-GAPS
// =============================================================================

func TestScheduleUtility_IgnoresLeaseStart(t *testing.T) {
	s, _ := newTestScheduler(t, testContract("c-1", "2025-09-01", 1, 500))

	res, err := s.ScheduleUtility(context.Background(), schedule.UtilityRequest{
		LandlordID: landlordID,
		ContractID: "c-1",
		Type:       schedule.CategoryWater,
		Year:       2025,
		PaymentDay: 10,
		Amount:     decimal.NewFromInt(40),
	})
	require.NoError(t, err)

	assert.Equal(t, 12, res.Scheduled)
	assert.Equal(t, "2025-01-10", res.Payments[0].DueDate.String())
}

func TestScheduleUtility_Validation(t *testing.T) {
	s, _ := newTestScheduler(t, testContract("c-1", "2020-01-01", 1, 500))
	ctx := context.Background()
	base := schedule.UtilityRequest{
		LandlordID: landlordID,
		ContractID: "c-1",
		Type:       schedule.CategoryGas,
		Year:       2025,
		PaymentDay: 10,
		Amount:     decimal.NewFromInt(40),
	}

	req := base
	req.Type = schedule.CategoryRent
	_, err := s.ScheduleUtility(ctx, req)
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)

	req = base
	req.PaymentDay = 0
	_, err = s.ScheduleUtility(ctx, req)
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)

	req = base
	req.Amount = decimal.Zero
	_, err = s.ScheduleUtility(ctx, req)
	var fe *schedule.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "amount", fe.Field)
}

func TestFillGaps_ElectricityFullYear(t *testing.T) {
	// GIVEN: No electricity payments yet
	s, mem := newTestScheduler(t, testContract("c-1", "2024-03-10", 5, 1000))
	amount := decimal.NewFromInt(200)

	// WHEN: Filling 2024 on the 15th
	res, err := s.FillGaps(context.Background(), schedule.GapRequest{
		LandlordID: landlordID,
		ContractID: "c-1",
		Type:       schedule.CategoryElectricity,
		Year:       2024,
		PaymentDay: 15,
		Amount:     &amount,
	})
	require.NoError(t, err)

	// THEN: One payment per month on the 15th
	assert.Equal(t, 12, res.Filled)
	require.Len(t, res.Payments, 12)
	for i, p := range res.Payments {
		assert.Equal(t, time.Month(i+1), p.DueDate.Month())
		assert.Equal(t, 15, p.DueDate.Day())
		assert.True(t, p.Amount.Equal(amount))
		assert.Equal(t, schedule.CategoryElectricity, p.Type)
	}
	assertDistinctMonths(t, paymentsOf(t, mem, "c-1", schedule.CategoryElectricity))

	records := mem.AuditRecords()
	require.Len(t, records, 1)
	assert.Equal(t, schedule.AuditGapsFilled, records[0].Action)
}

func TestFillGaps_OnlyMissingMonths(t *testing.T) {
	s, mem := newTestScheduler(t, testContract("c-1", "2020-01-01", 5, 1000))
	ctx := context.Background()
	for _, d := range []string{"2025-01-05", "2025-02-05", "2025-07-28"} {
		require.NoError(t, mem.CreatePayment(ctx, schedule.Payment{
			ID:         schedule.NewID(),
			ContractID: "c-1",
			Type:       schedule.CategoryRent,
			DueDate:    schedule.MustParseDate(d),
		}))
	}

	res, err := s.FillGaps(ctx, schedule.GapRequest{LandlordID: landlordID, ContractID: "c-1", Type: schedule.CategoryRent, Year: 2025})
	require.NoError(t, err)

	assert.Equal(t, 9, res.Filled)
	all := paymentsOf(t, mem, "c-1", schedule.CategoryRent)
	assert.Len(t, all, 12)
	assertDistinctMonths(t, all)
}

func TestFillGaps_UtilityRequiresDayAndAmount(t *testing.T) {
	s, _ := newTestScheduler(t, testContract("c-1", "2020-01-01", 5, 1000))
	ctx := context.Background()

	_, err := s.FillGaps(ctx, schedule.GapRequest{LandlordID: landlordID, ContractID: "c-1", Type: schedule.CategoryGas, PaymentDay: 3})
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)

	amount := decimal.NewFromInt(10)
	_, err = s.FillGaps(ctx, schedule.GapRequest{LandlordID: landlordID, ContractID: "c-1", Type: schedule.CategoryGas, Amount: &amount})
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)

	_, err = s.FillGaps(ctx, schedule.GapRequest{LandlordID: landlordID, ContractID: "c-1", Type: "internet"})
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_NoWrites(t *testing.T) {
	s, mem := newTestScheduler(t, testContract("c-1", "2024-06-15", 1, 1200))
	ctx := context.Background()
	require.NoError(t, mem.CreatePayment(ctx, schedule.Payment{
		ID:         "existing",
		ContractID: "c-1",
		Type:       schedule.CategoryRent,
		DueDate:    schedule.MustParseDate("2024-08-01"),
	}))

	res, err := s.Preview(ctx, schedule.GapRequest{LandlordID: landlordID, ContractID: "c-1", Type: schedule.CategoryRent, Year: 2024})
	require.NoError(t, err)

	assert.Equal(t, "c-1", res.ContractID)
	assert.Equal(t, 1, res.PaymentDay)
	assert.Equal(t, 6, res.TotalExpected)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, 5, res.WillCreate)
	assert.Equal(t, 1, res.WillSkip)
	require.Len(t, res.ToSkip, 1)
	assert.Equal(t, "2024-08-01", res.ToSkip[0].DueDate.String())
	assert.Equal(t, schedule.SkipReason, res.ToSkip[0].Reason)
	assert.True(t, res.ToCreate[0].Amount.Equal(decimal.NewFromInt(1200)))

	assert.Len(t, paymentsOf(t, mem, "c-1", schedule.CategoryRent), 1)
	assert.Empty(t, mem.AuditRecords())
}

func TestPreview_MatchesCommit(t *testing.T) {
	s, _ := newTestScheduler(t, testContract("c-1", "2024-03-10", 31, 1000))
	ctx := context.Background()
	req := schedule.GapRequest{LandlordID: landlordID, ContractID: "c-1", Type: schedule.CategoryRent, Year: 2024}

	preview, err := s.Preview(ctx, req)
	require.NoError(t, err)
	filled, err := s.FillGaps(ctx, req)
	require.NoError(t, err)

	require.Equal(t, preview.WillCreate, filled.Filled)
	for i, p := range filled.Payments {
		assert.Equal(t, preview.ToCreate[i].DueDate, p.DueDate)
	}
}

// =============================================================================
// STATUS
// =============================================================================

func TestStatus_AllCategories(t *testing.T) {
	s, _ := newTestScheduler(t, testContract("c-1", "2024-06-15", 1, 1000))
	ctx := context.Background()

	_, err := s.ScheduleRent(ctx, schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2024})
	require.NoError(t, err)

	status, err := s.Status(ctx, schedule.StatusRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2024})
	require.NoError(t, err)

	assert.Equal(t, 2024, status.Year)
	require.Len(t, status.Types, 4)

	rent := status.Types[schedule.CategoryRent]
	assert.Equal(t, 6, rent.Expected)
	assert.Equal(t, 6, rent.Existing)
	assert.Equal(t, 0, rent.Missing)
	assert.Empty(t, rent.MissingMonths)

	for _, c := range schedule.UtilityCategories() {
		st := status.Types[c]
		assert.Equal(t, 12, st.Expected, c.String())
		assert.Equal(t, 0, st.Existing, c.String())
		assert.Equal(t, 12, st.Missing, c.String())
		assert.Equal(t, "2024-01", st.MissingMonths[0])
		assert.NotNil(t, st.Payments)
	}
}

// =============================================================================
// FAILURES & CONFLICTS
// =============================================================================

// failingStore fails every CreatePayment after the first failAfter calls.
type failingStore struct {
	*store.TxMemory
	failAfter int
	calls     int
}

func (f *failingStore) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	return f.TxMemory.WithTx(ctx, func(tx schedule.Store) error {
		return fn(&failingView{Store: tx, parent: f})
	})
}

type failingView struct {
	schedule.Store
	parent *failingStore
}

func (v *failingView) CreatePayment(ctx context.Context, p schedule.Payment) error {
	v.parent.calls++
	if v.parent.calls > v.parent.failAfter {
		return errors.New("disk I/O error")
	}
	return v.Store.CreatePayment(ctx, p)
}

func TestSchedule_InsertFailureRollsBack(t *testing.T) {
	mem := store.NewTxMemory()
	require.NoError(t, mem.SaveContract(context.Background(), testContract("c-1", "2020-01-01", 1, 500)))
	fs := &failingStore{TxMemory: mem, failAfter: 4}
	s := schedule.NewScheduler(fs, testClock, "EUR")

	_, err := s.ScheduleRent(context.Background(), schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2025})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.False(t, schedule.IsClientError(err))

	// Nothing from the aborted run survives
	assert.Empty(t, paymentsOf(t, mem, "c-1", schedule.CategoryRent))
	assert.Empty(t, mem.AuditRecords())
}

// staleStore hides existing payments from reads inside a transaction, like
// a concurrent run that committed between our read and our insert.
type staleStore struct {
	*store.TxMemory
}

func (s *staleStore) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	return s.TxMemory.WithTx(ctx, func(tx schedule.Store) error {
		return fn(staleView{tx})
	})
}

type staleView struct {
	schedule.Store
}

func (staleView) FindPayments(context.Context, schedule.PaymentFilter) ([]schedule.Payment, error) {
	return nil, nil
}

func TestSchedule_UniqueConflictCountsAsSkipped(t *testing.T) {
	// GIVEN: A store enforcing one payment per month, with March taken
	mem := store.NewTxMemory()
	mem.UniqueMonths = true
	ctx := context.Background()
	require.NoError(t, mem.SaveContract(ctx, testContract("c-1", "2020-01-01", 5, 500)))
	require.NoError(t, mem.CreatePayment(ctx, schedule.Payment{
		ID:         "raced",
		ContractID: "c-1",
		Type:       schedule.CategoryRent,
		DueDate:    schedule.MustParseDate("2025-03-20"),
	}))
	s := schedule.NewScheduler(&staleStore{mem}, testClock, "")

	// WHEN: A run that did not see March tries to create it
	res, err := s.ScheduleRent(ctx, schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2025})

	// THEN: The conflict is swallowed and reported as skipped
	require.NoError(t, err)
	assert.Equal(t, 11, res.Scheduled)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"2025-03-05"}, dates(res.SkippedDates))

	all := paymentsOf(t, mem, "c-1", schedule.CategoryRent)
	assert.Len(t, all, 12)
	assertDistinctMonths(t, all)
}

// auditFailStore rejects every audit record.
type auditFailStore struct {
	*store.TxMemory
}

func (auditFailStore) CreateAuditRecord(context.Context, schedule.AuditRecord) error {
	return errors.New("audit table locked")
}

func TestSchedule_AuditFailureKeepsPayments(t *testing.T) {
	mem := store.NewTxMemory()
	require.NoError(t, mem.SaveContract(context.Background(), testContract("c-1", "2020-01-01", 1, 500)))
	s := schedule.NewScheduler(auditFailStore{mem}, testClock, "")

	res, err := s.ScheduleRent(context.Background(), schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2025})
	require.NoError(t, err)

	assert.Equal(t, 12, res.Scheduled)
	assert.Len(t, paymentsOf(t, mem, "c-1", schedule.CategoryRent), 12)
	assert.Empty(t, mem.AuditRecords())
}

func TestSchedule_WithoutTransactions(t *testing.T) {
	// A plain Store (no WithTx) is still usable.
	mem := store.NewMemory()
	require.NoError(t, mem.SaveContract(context.Background(), testContract("c-1", "2020-01-01", 1, 500)))
	s := schedule.NewScheduler(mem, testClock, "")

	res, err := s.ScheduleRent(context.Background(), schedule.RentRequest{LandlordID: landlordID, ContractID: "c-1", Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Scheduled)
}
