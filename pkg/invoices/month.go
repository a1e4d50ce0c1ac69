package invoices

import (
	"fmt"
	"time"
)

// Month is an invoice month in YYYY-MM form.
type Month string

// ParseMonth validates s as a YYYY-MM month.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return "", fmt.Errorf("invalid invoice month %q, must be in format YYYY-MM: %w", s, err)
	}
	return Month(t.Format("2006-01")), nil
}

func (m Month) String() string {
	return string(m)
}

func (m Month) time() time.Time {
	t, _ := time.Parse("2006-01", string(m))
	return t
}

// MonthsBetween returns how many months a is ahead of b. Positive when a is
// later in time than b.
func MonthsBetween(a, b Month) int {
	at, bt := a.time(), b.time()
	return (at.Year()-bt.Year())*12 + int(at.Month()) - int(bt.Month())
}

// Before reports whether m is strictly earlier than other.
func (m Month) Before(other Month) bool {
	return MonthsBetween(m, other) < 0
}

// After reports whether m is strictly later than other.
func (m Month) After(other Month) bool {
	return MonthsBetween(m, other) > 0
}
