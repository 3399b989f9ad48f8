package schedule

import "time"

// Clock supplies the current instant. The engine never calls time.Now directly.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the calendar day of the clock's current instant.
func Today(c Clock) Date { return DateOf(c.Now()) }
