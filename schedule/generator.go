/*
generator.go - Candidate due-date generation

PURPOSE:
  Produces the due dates a category should have in a year. These functions
  are pure: the same inputs always give the same ordered slice, which is
  what keeps Preview and Schedule in agreement.

DAY CLAMPING:
  The requested payment day is clamped to each month's length, so day 31
  yields Feb 28 (Feb 29 in leap years), Apr 30 and so on. It never rolls
  over into the next month.

  Requested day 31 in 2024:
    Jan 31, Feb 29, Mar 31, Apr 30, May 31, Jun 30, ...

LEASE BOUNDARY:
  Rent dates before the lease start are dropped. Utility dates have no such
  floor and always cover all 12 months.

  RentDates(2024-06-15, 2024, 1):
    Jun 1 < Jun 15, excluded  -> first date is Jul 1

SEE ALSO:
  - gaps.go: Filters these candidates against existing payments
*/
package schedule

import "time"

// RentDates returns rent due dates for year on paymentDay, skipping any date
// before leaseStart. The result is ascending and has at most 12 entries.
func RentDates(leaseStart Date, year, paymentDay int) []Date {
	var dates []Date
	for _, candidate := range UtilityDates(year, paymentDay) {
		if candidate.Before(leaseStart) {
			continue
		}
		dates = append(dates, candidate)
	}
	return dates
}

// UtilityDates returns exactly 12 due dates, one per month of year.
func UtilityDates(year, paymentDay int) []Date {
	dates := make([]Date, 0, 12)
	for m := time.January; m <= time.December; m++ {
		dates = append(dates, NewDate(year, m, clampDay(year, m, paymentDay)))
	}
	return dates
}

// CandidateDates dispatches to the generator for category.
func CandidateDates(category Category, leaseStart Date, year, paymentDay int) []Date {
	switch category {
	case CategoryRent:
		return RentDates(leaseStart, year, paymentDay)
	case CategoryElectricity, CategoryWater, CategoryGas:
		return UtilityDates(year, paymentDay)
	default:
		return nil
	}
}

func clampDay(year int, month time.Month, day int) int {
	if day < 1 {
		return 1
	}
	return min(day, DaysInMonth(year, month))
}
