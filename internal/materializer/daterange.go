package materializer

import (
	"errors"
	"fmt"

	"github.com/benvon/dayplan/internal/models"
)

// ErrInvalidRange is returned when a range is empty, reversed or too long
var ErrInvalidRange = errors.New("invalid date range")

// DateRange is an inclusive range of calendar days
type DateRange struct {
	Start models.Date
	End   models.Date
}

// SingleDay returns the range covering exactly d
func SingleDay(d models.Date) DateRange {
	return DateRange{Start: d, End: d}
}

// NewDateRange validates and returns [start, end]. maxDays <= 0 disables the length check.
func NewDateRange(start, end models.Date, maxDays int) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	if err := r.Validate(maxDays); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks the range is well formed
func (r DateRange) Validate(maxDays int) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, r.End, r.Start)
	}
	if maxDays > 0 && r.Len() > maxDays {
		return fmt.Errorf("%w: %d days exceeds the maximum of %d", ErrInvalidRange, r.Len(), maxDays)
	}
	return nil
}

// Len returns the number of days in the range
func (r DateRange) Len() int {
	return models.DaysBetween(r.Start, r.End) + 1
}

// Days returns every date in the range in chronological order
func (r DateRange) Days() []models.Date {
	if r.End.Before(r.Start) {
		return nil
	}
	days := make([]models.Date, 0, r.Len())
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}
