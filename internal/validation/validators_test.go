package validation

import (
	"strings"
	"testing"
)

type templateInput struct {
	Title      string `validate:"required"`
	Rule       string `validate:"required,recurrence_rule"`
	StartDate  string `validate:"required,calendar_date"`
	TimeOfDay  string `validate:"omitempty,clock_time"`
	Visibility string `validate:"omitempty,visibility"`
	Priority   string `validate:"omitempty,priority"`
}

func TestValidate_CustomTags(t *testing.T) {
	t.Parallel()

	valid := templateInput{Title: "Standup", Rule: "daily_weekdays", StartDate: "2024-01-01"}

	tests := []struct {
		name    string
		mutate  func(*templateInput)
		wantErr string
	}{
		{name: "valid minimal", mutate: func(*templateInput) {}},
		{name: "valid full", mutate: func(in *templateInput) {
			in.TimeOfDay, in.Visibility, in.Priority = "07:30", "workspace", "urgent"
		}},
		{name: "custom rule accepted", mutate: func(in *templateInput) { in.Rule = "custom" }},
		{name: "unknown rule", mutate: func(in *templateInput) { in.Rule = "hourly" }, wantErr: "rule: must be one of"},
		{name: "bad date", mutate: func(in *templateInput) { in.StartDate = "2024-02-30" }, wantErr: "startdate: must be YYYY-MM-DD"},
		{name: "bad clock", mutate: func(in *templateInput) { in.TimeOfDay = "25:00" }, wantErr: "timeofday: must be HH:MM"},
		{name: "bad visibility", mutate: func(in *templateInput) { in.Visibility = "public" }, wantErr: "visibility: must be 'private' or 'workspace'"},
		{name: "bad priority", mutate: func(in *templateInput) { in.Priority = "meh" }, wantErr: "priority: must be"},
		{name: "missing title", mutate: func(in *templateInput) { in.Title = "" }, wantErr: "title: is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := valid
			tt.mutate(&in)
			err := Validate.Struct(in)

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if msg := FormatErrors(err); !strings.Contains(msg, tt.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErr, msg)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"  Water plants  ", "Water plants"},
		{"Line one\nLine two", "Line one\nLine two"},
		{"Bell\x07 removed", "Bell removed"},
		{"\ttabbed", "tabbed"},
	}

	for _, tt := range tests {
		if got := SanitizeText(tt.in); got != tt.want {
			t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
