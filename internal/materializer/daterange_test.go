package materializer

import (
	"errors"
	"testing"

	"github.com/benvon/dayplan/internal/models"
)

func TestNewDateRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		start   string
		end     string
		maxDays int
		wantLen int
		wantErr bool
	}{
		{name: "single day", start: "2024-01-01", end: "2024-01-01", maxDays: 62, wantLen: 1},
		{name: "leap february", start: "2024-02-01", end: "2024-02-29", maxDays: 62, wantLen: 29},
		{name: "at the bound", start: "2024-01-01", end: "2024-03-02", maxDays: 62, wantLen: 62},
		{name: "over the bound", start: "2024-01-01", end: "2024-03-03", maxDays: 62, wantErr: true},
		{name: "unbounded", start: "2024-01-01", end: "2025-01-01", maxDays: 0, wantLen: 367},
		{name: "reversed", start: "2024-01-02", end: "2024-01-01", maxDays: 62, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewDateRange(models.MustParseDate(tt.start), models.MustParseDate(tt.end), tt.maxDays)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRange) {
					t.Errorf("Expected ErrInvalidRange, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if r.Len() != tt.wantLen {
				t.Errorf("Expected length %d, got %d", tt.wantLen, r.Len())
			}
			if days := r.Days(); len(days) != tt.wantLen {
				t.Errorf("Expected %d days, got %d", tt.wantLen, len(days))
			}
		})
	}
}

func TestDateRange_ZeroBoundsAreInvalid(t *testing.T) {
	t.Parallel()

	r := DateRange{End: models.MustParseDate("2024-01-01")}
	if err := r.Validate(0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Expected ErrInvalidRange, got %v", err)
	}
}

func TestDateRange_DaysCrossMonthBoundary(t *testing.T) {
	t.Parallel()

	days := DateRange{Start: models.MustParseDate("2023-12-30"), End: models.MustParseDate("2024-01-02")}.Days()
	want := []string{"2023-12-30", "2023-12-31", "2024-01-01", "2024-01-02"}
	if len(days) != len(want) {
		t.Fatalf("Expected %d days, got %d", len(want), len(days))
	}
	for i, d := range days {
		if d.String() != want[i] {
			t.Errorf("Expected day %d to be %s, got %s", i, want[i], d)
		}
	}
}
