package recurrence

import "github.com/benvon/dayplan/internal/models"

// Occurrences lists every date in [from, to] on which rule fires, honoring an
// optional inclusive repeatUntil. Used for previews; materialization evaluates
// one date at a time.
func Occurrences(rule models.RecurrenceRule, start, repeatUntil, from, to models.Date) []models.Date {
	var dates []models.Date
	if start.IsZero() || to.Before(from) {
		return dates
	}
	if from.Before(start) {
		from = start
	}
	if !repeatUntil.IsZero() && repeatUntil.Before(to) {
		to = repeatUntil
	}
	for d := from; !d.After(to); d = d.AddDays(1) {
		if Matches(rule, start, d) {
			dates = append(dates, d)
		}
	}
	return dates
}
