package schedule

import "sort"

// =============================================================================
// MONTH SET - "YYYY-MM" tokens already covered by a payment
// =============================================================================

type MonthSet map[string]struct{}

func NewMonthSet(keys ...string) MonthSet {
	s := make(MonthSet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s MonthSet) Add(key string) { s[key] = struct{}{} }

func (s MonthSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s MonthSet) Len() int { return len(s) }

// Sorted returns the tokens in ascending order.
func (s MonthSet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MonthsOf reduces payments to the months of their own due dates.
func MonthsOf(payments []Payment) MonthSet {
	s := make(MonthSet, len(payments))
	for _, p := range payments {
		s.Add(p.DueDate.MonthKey())
	}
	return s
}

// =============================================================================
// GAP CALCULATOR
// =============================================================================

// MissingDates keeps the candidates whose month is not in existing.
// Input order is preserved.
func MissingDates(candidates []Date, existing MonthSet) []Date {
	var missing []Date
	for _, d := range candidates {
		if !existing.Has(d.MonthKey()) {
			missing = append(missing, d)
		}
	}
	return missing
}

// CoveredDates is the complement of MissingDates.
func CoveredDates(candidates []Date, existing MonthSet) []Date {
	var covered []Date
	for _, d := range candidates {
		if existing.Has(d.MonthKey()) {
			covered = append(covered, d)
		}
	}
	return covered
}

// ExactMatches returns the candidates that equal some payment's due date.
// Used for reporting only; creation decisions are made per month.
func ExactMatches(candidates []Date, payments []Payment) []Date {
	due := make(map[string]struct{}, len(payments))
	for _, p := range payments {
		due[p.DueDate.String()] = struct{}{}
	}
	var matches []Date
	for _, d := range candidates {
		if _, ok := due[d.String()]; ok {
			matches = append(matches, d)
		}
	}
	return matches
}
