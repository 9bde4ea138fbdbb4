package handlers

import (
	"errors"
	"net/http"

	"github.com/benvon/dayplan/internal/materializer"
	"github.com/benvon/dayplan/internal/metrics"
	"github.com/benvon/dayplan/internal/models"
	"github.com/benvon/dayplan/internal/queue"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PlanHandler serves materialized daily plans
type PlanHandler struct {
	materializer      *materializer.Materializer
	jobs              queue.JobQueue
	deduper           queue.Deduper
	defaultVisibility models.Visibility
	logger            *zap.Logger
}

// NewPlanHandler creates a new plan handler. jobs may be nil, in which case
// prefetch requests are rejected with 503.
func NewPlanHandler(m *materializer.Materializer, jobs queue.JobQueue, deduper queue.Deduper, defaultVisibility models.Visibility, logger *zap.Logger) *PlanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deduper == nil {
		deduper = queue.NewRedisDeduper(nil, 0, logger)
	}
	if defaultVisibility == "" {
		defaultVisibility = models.VisibilityPrivate
	}
	return &PlanHandler{
		materializer:      m,
		jobs:              jobs,
		deduper:           deduper,
		defaultVisibility: defaultVisibility,
		logger:            logger,
	}
}

// RegisterRoutes registers plan routes on the given router
// The router should already have the /plans prefix
func (h *PlanHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListPlans).Methods("GET")
	r.HandleFunc("/prefetch", h.Prefetch).Methods("POST")
	r.HandleFunc("/{date}", h.GetPlan).Methods("GET")
}

// PrefetchRequest asks for a window to be materialized in the background
type PrefetchRequest struct {
	Start      string `json:"start" validate:"required,calendar_date"`
	End        string `json:"end" validate:"required,calendar_date"`
	Visibility string `json:"visibility,omitempty" validate:"omitempty,visibility"`
}

// PrefetchResponse reports whether a job was queued
type PrefetchResponse struct {
	JobID        *uuid.UUID `json:"job_id"`
	Start        string     `json:"start"`
	End          string     `json:"end"`
	Deduplicated bool       `json:"deduplicated"`
}

// GetPlan materializes and returns the plan for one date. data is null when
// no template occurs on the date and no plan exists. When some templates could
// not be ensured the envelope is marked partial and lists the failures.
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	date, err := parseDateParam(mux.Vars(r)["date"], "date")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	visibility, err := visibilityParam(r, h.defaultVisibility)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	result, err := h.materializer.MaterializeDate(r.Context(), identity.UserID, identity.WorkspaceID, date, visibility)
	if err != nil {
		h.respondMaterializeError(w, err)
		return
	}
	h.logFailures(identity, result)

	if len(result.Failures) > 0 {
		respondPartialJSON(w, http.StatusOK, result.Plan(), result.Failures)
		return
	}
	respondJSON(w, http.StatusOK, result.Plan())
}

// ListPlans materializes and returns every date in [start, end], including
// empty placeholders for dates without a plan
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	dateRange, ok := h.rangeFromValues(w, r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if !ok {
		return
	}
	visibility, err := visibilityParam(r, h.defaultVisibility)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	result, err := h.materializer.Materialize(r.Context(), materializer.Request{
		UserID:      identity.UserID,
		WorkspaceID: identity.WorkspaceID,
		Range:       dateRange,
		Visibility:  visibility,
		Form:        "range",
	})
	if err != nil {
		h.respondMaterializeError(w, err)
		return
	}
	h.logFailures(identity, result)

	respondJSON(w, http.StatusOK, result)
}

// Prefetch queues background materialization of a window. Identical requests
// within the dedupe TTL are accepted without queueing a second job.
func (h *PlanHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	if h.jobs == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Prefetch queue is not configured")
		return
	}

	var req PrefetchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	dateRange, ok := h.rangeFromValues(w, req.Start, req.End)
	if !ok {
		return
	}
	visibility := h.defaultVisibility
	if req.Visibility != "" {
		visibility = models.Visibility(req.Visibility)
	}

	job := queue.NewMaterializeJob(identity.UserID, identity.WorkspaceID, dateRange.Start, dateRange.End, visibility)
	response := PrefetchResponse{Start: dateRange.Start.String(), End: dateRange.End.String()}

	if !h.deduper.Claim(r.Context(), job.DedupeKey()) {
		metrics.RecordPrefetch("deduplicated")
		response.Deduplicated = true
		respondJSON(w, http.StatusAccepted, response)
		return
	}

	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		metrics.RecordPrefetch("enqueue_failed")
		h.logger.Error("failed_to_enqueue_prefetch",
			zap.String("user_id", identity.UserID.String()),
			zap.String("workspace_id", identity.WorkspaceID.String()),
			zap.String("range", dateRange.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to queue prefetch")
		return
	}

	metrics.RecordPrefetch("enqueued")
	response.JobID = &job.ID
	respondJSON(w, http.StatusAccepted, response)
}

func (h *PlanHandler) rangeFromValues(w http.ResponseWriter, startValue, endValue string) (materializer.DateRange, bool) {
	start, err := parseDateParam(startValue, "start")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return materializer.DateRange{}, false
	}
	end, err := parseDateParam(endValue, "end")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return materializer.DateRange{}, false
	}

	dateRange, err := materializer.NewDateRange(start, end, h.materializer.MaxRangeDays())
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return materializer.DateRange{}, false
	}
	return dateRange, true
}

func (h *PlanHandler) respondMaterializeError(w http.ResponseWriter, err error) {
	if errors.Is(err, materializer.ErrInvalidRange) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	h.logger.Error("materialization_failed", zap.Error(err))
	respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to materialize plans")
}

func (h *PlanHandler) logFailures(identity *models.Identity, result *materializer.Result) {
	if len(result.Failures) == 0 {
		return
	}
	h.logger.Warn("materialization_partial",
		zap.String("user_id", identity.UserID.String()),
		zap.String("workspace_id", identity.WorkspaceID.String()),
		zap.Int("failures", len(result.Failures)),
		zap.Int("succeeded_dates", len(result.SucceededDates)),
	)
}
