package schedule_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/rent-scheduler/schedule"
)

func paymentDue(s string) schedule.Payment {
	return schedule.Payment{DueDate: schedule.MustParseDate(s)}
}

func TestMonthsOf(t *testing.T) {
	set := schedule.MonthsOf([]schedule.Payment{
		paymentDue("2025-03-05"),
		paymentDue("2025-03-20"),
		paymentDue("2025-07-01"),
	})

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Has("2025-03"))
	assert.True(t, set.Has("2025-07"))
	assert.False(t, set.Has("2025-04"))
	assert.Equal(t, []string{"2025-03", "2025-07"}, set.Sorted())
}

func TestMissingDates_MonthGranularity(t *testing.T) {
	// GIVEN: A payment on the 20th of March
	existing := schedule.NewMonthSet("2025-03")
	candidates := schedule.UtilityDates(2025, 5)

	// WHEN: Candidates are due on the 5th
	missing := schedule.MissingDates(candidates, existing)

	// THEN: March is still covered even though the day differs
	assert.Len(t, missing, 11)
	for _, d := range missing {
		assert.NotEqual(t, "2025-03", d.MonthKey())
	}
}

func TestMissingAndCoveredPartitionCandidates(t *testing.T) {
	candidates := schedule.UtilityDates(2025, 15)
	existing := schedule.NewMonthSet("2025-01", "2025-06", "2025-12", "2024-06")

	missing := schedule.MissingDates(candidates, existing)
	covered := schedule.CoveredDates(candidates, existing)

	assert.Len(t, missing, 9)
	assert.Equal(t, []string{"2025-01-15", "2025-06-15", "2025-12-15"}, dates(covered))
	assert.Equal(t, len(candidates), len(missing)+len(covered))
}

func TestMissingDates_PreservesOrder(t *testing.T) {
	missing := schedule.MissingDates(schedule.UtilityDates(2025, 1), schedule.NewMonthSet("2025-02"))

	for i := 1; i < len(missing); i++ {
		assert.True(t, missing[i-1].Before(missing[i]))
	}
}

func TestMissingDates_Empty(t *testing.T) {
	assert.Empty(t, schedule.MissingDates(nil, schedule.NewMonthSet()))

	full := schedule.NewMonthSet()
	for _, d := range schedule.UtilityDates(2025, 9) {
		full.Add(d.MonthKey())
	}
	assert.Empty(t, schedule.MissingDates(schedule.UtilityDates(2025, 1), full))
}

func TestExactMatches(t *testing.T) {
	candidates := schedule.UtilityDates(2025, 5)
	payments := []schedule.Payment{
		paymentDue("2025-02-05"),
		paymentDue("2025-03-20"), // same month, other day
	}

	assert.Equal(t, []string{"2025-02-05"}, dates(schedule.ExactMatches(candidates, payments)))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, schedule.IsNotFound(schedule.ErrContractNotFound))
	assert.True(t, schedule.IsClientError(&schedule.FieldError{Field: "amount", Message: "required"}))
	assert.True(t, schedule.IsClientError(schedule.ErrContractNotActive))
	assert.False(t, schedule.IsClientError(errors.New("disk full")))

	_, err := schedule.ParseCategory("internet")
	var invalid *schedule.InvalidCategoryError
	assert.ErrorAs(t, err, &invalid)
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)

	dup := &schedule.DuplicatePaymentError{ContractID: "c-1", Type: schedule.CategoryRent, Month: "2025-01"}
	assert.ErrorIs(t, dup, schedule.ErrPaymentExists)
}
