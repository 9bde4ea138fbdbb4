package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/dayplan/internal/database/memstore"
	"github.com/benvon/dayplan/internal/materializer"
	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestMaterializerSpansJoinRequestTrace verifies that a materialization span
// is a child of the incoming request span and keeps the caller's trace ID
func TestMaterializerSpansJoinRequestTrace(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	Install(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	store := memstore.New()
	m := materializer.New(store, store, store.Instances())
	userID, wsID := uuid.New(), uuid.New()

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(ServiceName))
	r.HandleFunc("/plans/{date}", func(w http.ResponseWriter, r *http.Request) {
		date, err := models.ParseDate(mux.Vars(r)["date"])
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, err := m.MaterializeDate(r.Context(), userID, wsID, date, models.VisibilityPrivate); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		traceParent string
		wantTraceID string
	}{
		{name: "new trace"},
		{
			name:        "propagated trace",
			traceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			wantTraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest("GET", "/plans/2024-01-08", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", rr.Code)
			}

			spans := exporter.GetSpans()
			var server, materialize *tracetest.SpanStub
			for i := range spans {
				switch spans[i].Name {
				case "materializer.Materialize":
					materialize = &spans[i]
				case "/plans/{date}":
					server = &spans[i]
				}
			}
			if server == nil || materialize == nil {
				t.Fatalf("Expected request and materializer spans, got %d spans", len(spans))
			}
			if materialize.Parent.SpanID() != server.SpanContext.SpanID() {
				t.Error("Expected materializer span to be a child of the request span")
			}
			if tt.wantTraceID != "" && materialize.SpanContext.TraceID().String() != tt.wantTraceID {
				t.Errorf("Expected trace ID %s, got %s", tt.wantTraceID, materialize.SpanContext.TraceID())
			}
		})
	}
}
