package commands

import (
	"bytes"
	"strings"
	"testing"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewPreviewCmd()
	if len(args) > 0 && args[0] == "auth" {
		cmd = NewAuthCmd()
		args = args[1:]
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPreviewCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		args      []string
		wantLines []string
		wantErr   string
	}{
		{
			name:      "monthly ordinal weekday",
			args:      []string{"--rule", "monthly", "--start-date", "2024-01-03", "--from", "2024-01-01", "--to", "2024-03-31"},
			wantLines: []string{"2024-01-03  Wednesday", "2024-02-07  Wednesday", "2024-03-06  Wednesday"},
		},
		{
			name:      "biweekly stops at until",
			args:      []string{"--rule", "biweekly", "--start-date", "2024-01-01", "--until", "2024-01-20", "--from", "2024-01-01", "--to", "2024-02-28"},
			wantLines: []string{"2024-01-01  Monday", "2024-01-15  Monday"},
		},
		{
			name:      "custom never occurs",
			args:      []string{"--rule", "custom", "--start-date", "2024-01-01"},
			wantLines: []string{"No occurrences"},
		},
		{
			name:    "unknown rule",
			args:    []string{"--rule", "hourly", "--start-date", "2024-01-01"},
			wantErr: "unknown rule",
		},
		{
			name:    "bad anchor",
			args:    []string{"--rule", "weekly", "--start-date", "2024-13-01"},
			wantErr: "--start-date",
		},
		{
			name:    "inverted window",
			args:    []string{"--rule", "weekly", "--start-date", "2024-01-01", "--from", "2024-02-01", "--to", "2024-01-01"},
			wantErr: "must not be before",
		},
		{
			name:    "window too long",
			args:    []string{"--rule", "weekly", "--start-date", "2024-01-01", "--from", "2024-01-01", "--to", "2026-01-01"},
			wantErr: "exceeds",
		},
		{
			name:    "missing rule",
			args:    []string{"--start-date", "2024-01-01"},
			wantErr: "rule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := runCmd(t, tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			lines := strings.Split(strings.TrimSpace(out), "\n")
			if len(lines) != len(tt.wantLines) {
				t.Fatalf("Expected %d lines, got %d: %q", len(tt.wantLines), len(lines), out)
			}
			for i, want := range tt.wantLines {
				if lines[i] != want {
					t.Errorf("Expected line %d to be %q, got %q", i, want, lines[i])
				}
			}
		})
	}
}

func TestParseOwner(t *testing.T) {
	t.Parallel()

	if _, _, err := parseOwner("not-a-uuid", "6f1c1f0e-6d7c-4f55-9a35-1b1a3c1d2e3f"); err == nil || !strings.Contains(err.Error(), "--user") {
		t.Errorf("Expected --user error, got %v", err)
	}
	if _, _, err := parseOwner("6f1c1f0e-6d7c-4f55-9a35-1b1a3c1d2e3f", ""); err == nil || !strings.Contains(err.Error(), "--workspace") {
		t.Errorf("Expected --workspace error, got %v", err)
	}
	if _, _, err := parseOwner("6f1c1f0e-6d7c-4f55-9a35-1b1a3c1d2e3f", "0d9f4c55-2a7b-4c1e-8e7f-5b2a1c3d4e5f"); err != nil {
		t.Errorf("Expected valid owner, got %v", err)
	}
}
