// Package contract answers calendar questions about a broker contract:
// which contract month a date falls in and whether the broker is billable or
// assignable in a given month.
package contract

import "time"

// Terms is the contract slice of a broker.
type Terms struct {
	Start  time.Time
	End    *time.Time
	Paused bool
}

// Month returns the 1-based contract month of (month, year). Months before the
// contract start yield values below 1 and are not guarded.
func Month(start time.Time, month, year int) int {
	return (year-start.Year())*12 + (month - int(start.Month())) + 1
}

// MonthBounds returns [first instant of the month, first instant of the next
// month) in UTC.
func MonthBounds(month, year int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func LastDay(month, year int) time.Time {
	_, to := MonthBounds(month, year)
	return to.AddDate(0, 0, -1)
}

func DayBounds(day time.Time) (time.Time, time.Time) {
	from := dateOf(day)
	return from, from.AddDate(0, 0, 1)
}

// PauseApplies reports whether a paused contract blocks (month, year). A pause
// only affects the current and future months; past months stay billable.
func PauseApplies(t Terms, month, year int, now time.Time) bool {
	if !t.Paused {
		return false
	}
	target, _ := MonthBounds(month, year)
	current, _ := MonthBounds(int(now.Month()), now.Year())
	return !target.Before(current)
}

// Terminated reports whether the contract has ended on or before the last day
// of (month, year).
func Terminated(t Terms, month, year int) bool {
	if t.End == nil {
		return false
	}
	return !dateOf(*t.End).After(LastDay(month, year))
}

// IsActiveForBilling is the weak, billing-side predicate: leads already
// delivered in the month are always billed.
func IsActiveForBilling(t Terms, month, year int, deliveredInMonth int, now time.Time) bool {
	if deliveredInMonth > 0 {
		return true
	}
	return CanReceiveNewLeads(t, month, year, now)
}

// CanReceiveNewLeads is the strict, assignment-side predicate.
func CanReceiveNewLeads(t Terms, month, year int, now time.Time) bool {
	if PauseApplies(t, month, year, now) {
		return false
	}
	return !Terminated(t, month, year)
}

// WorkingDaysUntilMonthEnd counts Monday to Friday from day through the last
// day of its month, both inclusive. Public holidays are not considered.
func WorkingDaysUntilMonthEnd(day time.Time) int {
	current := dateOf(day)
	last := LastDay(int(current.Month()), current.Year())
	days := 0
	for !current.After(last) {
		switch current.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
		current = current.AddDate(0, 0, 1)
	}
	return days
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
