package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func healthy(context.Context) error { return nil }

func TestHealthChecker_HealthCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		checks     map[string]Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips probes",
			checks:     map[string]Checker{"database": CheckerFunc(func(context.Context) error { return errors.New("down") })},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
		},
		{
			name:  "extended mode all healthy",
			query: "?mode=extended",
			checks: map[string]Checker{
				"database": CheckerFunc(healthy),
				"redis":    CheckerFunc(healthy),
				"queue":    CheckerFunc(healthy),
			},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
			wantChecks: map[string]string{"database": "healthy", "redis": "healthy", "queue": "healthy"},
		},
		{
			name:  "extended mode with failing dependency",
			query: "?mode=extended",
			checks: map[string]Checker{
				"database": CheckerFunc(healthy),
				"redis":    CheckerFunc(func(context.Context) error { return errors.New("connection refused") }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
			wantChecks: map[string]string{"database": "healthy", "redis": "unhealthy"},
		},
		{
			name:       "nil probes are skipped",
			query:      "?mode=extended",
			checks:     map[string]Checker{"database": CheckerFunc(healthy), "queue": nil},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
			wantChecks: map[string]string{"database": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewHealthChecker(tt.checks, zap.NewNop())
			w := httptest.NewRecorder()
			checker.HealthCheck(w, httptest.NewRequest("GET", "/healthz"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var body HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("Expected status '%s', got '%s'", tt.wantBody, body.Status)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("Expected %d checks, got %v", len(tt.wantChecks), body.Checks)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("Expected check[%s] = %s, got %s", name, want, body.Checks[name])
				}
			}
		})
	}
}
