// Package recurrence decides which calendar days a recurrence rule fires on.
// Everything here is pure: no I/O, no clocks, no shared state.
package recurrence

import (
	"time"

	"github.com/benvon/dayplan/internal/models"
)

// fixedNthOrdinal is the ordinal used by monthly_nth_weekday regardless of the anchor
const fixedNthOrdinal = 2

// Matches reports whether rule, anchored at start, fires on candidate.
// Candidates before the anchor never match. Unknown and custom rules never match.
func Matches(rule models.RecurrenceRule, start, candidate models.Date) bool {
	if start.IsZero() || candidate.IsZero() || candidate.Before(start) {
		return false
	}

	sameWeekday := candidate.Weekday() == start.Weekday()

	switch rule {
	case models.RuleDailyWeekdays:
		return IsWeekday(candidate)
	case models.RuleWeekly:
		return sameWeekday
	case models.RuleBiweekly:
		return sameWeekday && models.DaysBetween(start, candidate)%14 == 0
	case models.RuleMonthly:
		return sameWeekday && OrdinalWeekday(candidate) == OrdinalWeekday(start)
	case models.RuleMonthlyNthWeekday:
		return sameWeekday && OrdinalWeekday(candidate) == fixedNthOrdinal
	case models.RuleQuarterly:
		return sameWeekday &&
			OrdinalWeekday(candidate) == OrdinalWeekday(start) &&
			MonthDistance(start, candidate)%3 == 0
	case models.RuleYearly:
		return sameWeekday &&
			OrdinalWeekday(candidate) == OrdinalWeekday(start) &&
			candidate.Month() == start.Month()
	case models.RuleSpecificTime:
		return true
	default:
		// custom has no expression to evaluate
		return false
	}
}

// IsWeekday reports whether d is Monday through Friday
func IsWeekday(d models.Date) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// OrdinalWeekday returns which occurrence of its weekday d is within its month
// (1 for the first Wednesday, 2 for the second, ...). It counts matching days
// from the 1st forward rather than using ceil(day/7).
func OrdinalWeekday(d models.Date) int {
	if d.IsZero() {
		return 0
	}
	target := d.Weekday()
	count := 0
	for day := d.FirstOfMonth(); !day.After(d); day = day.AddDays(1) {
		if day.Weekday() == target {
			count++
		}
	}
	return count
}

// MonthDistance returns the cyclic month-of-year distance from start to candidate, in [0, 12)
func MonthDistance(start, candidate models.Date) int {
	return (int(candidate.Month()) - int(start.Month()) + 12) % 12
}
