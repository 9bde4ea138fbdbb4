package handlers

import (
	"errors"
	"net/http"

	"github.com/benvon/dayplan/internal/database"
	"github.com/benvon/dayplan/internal/materializer"
	"github.com/benvon/dayplan/internal/models"
	"github.com/benvon/dayplan/internal/recurrence"
	"github.com/benvon/dayplan/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	// MaxTitleLength is the maximum length for template titles
	MaxTitleLength = 500
	// MaxPreviewDays bounds an occurrence preview
	MaxPreviewDays = 366
)

// TemplateHandler handles recurring task template requests
type TemplateHandler struct {
	templates database.TemplateRepositoryInterface
	logger    *zap.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(templates database.TemplateRepositoryInterface, logger *zap.Logger) *TemplateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateHandler{templates: templates, logger: logger}
}

// RegisterRoutes registers template routes on the given router
// The router should already have the /templates prefix
func (h *TemplateHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTemplates).Methods("GET")
	r.HandleFunc("", h.CreateTemplate).Methods("POST")
	r.HandleFunc("/{id}", h.GetTemplate).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateTemplate).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeactivateTemplate).Methods("DELETE")
	r.HandleFunc("/{id}/occurrences", h.PreviewOccurrences).Methods("GET")
}

// CreateTemplateRequest represents a create template request
type CreateTemplateRequest struct {
	Title            string `json:"title" validate:"required,min=1,max=500"`
	Category         string `json:"category" validate:"max=100"`
	EstimatedMinutes *int   `json:"estimated_minutes,omitempty" validate:"omitempty,min=1,max=1440"`
	Notes            string `json:"notes" validate:"max=10000"`
	Priority         string `json:"priority,omitempty" validate:"omitempty,priority"`
	Rule             string `json:"rule" validate:"required,recurrence_rule"`
	StartDate        string `json:"start_date" validate:"required,calendar_date"`
	TimeOfDay        string `json:"time_of_day,omitempty" validate:"omitempty,clock_time"`
	RepeatUntil      string `json:"repeat_until,omitempty" validate:"omitempty,calendar_date"`
}

// UpdateTemplateRequest represents a partial template update. An empty
// time_of_day or repeat_until clears the field.
type UpdateTemplateRequest struct {
	Title            *string `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Category         *string `json:"category,omitempty" validate:"omitempty,max=100"`
	EstimatedMinutes *int    `json:"estimated_minutes,omitempty" validate:"omitempty,min=1,max=1440"`
	Notes            *string `json:"notes,omitempty" validate:"omitempty,max=10000"`
	Priority         *string `json:"priority,omitempty" validate:"omitempty,priority"`
	Rule             *string `json:"rule,omitempty" validate:"omitempty,recurrence_rule"`
	StartDate        *string `json:"start_date,omitempty" validate:"omitempty,calendar_date"`
	TimeOfDay        *string `json:"time_of_day,omitempty"`
	RepeatUntil      *string `json:"repeat_until,omitempty"`
}

// OccurrencePreview lists the dates a template would materialize on
type OccurrencePreview struct {
	TemplateID  uuid.UUID             `json:"template_id"`
	Rule        models.RecurrenceRule `json:"rule"`
	Start       models.Date           `json:"start"`
	End         models.Date           `json:"end"`
	Occurrences []models.Date         `json:"occurrences"`
}

// ListTemplates lists the caller's active templates in the current workspace
func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	templates, err := h.templates.ListActive(r.Context(), identity.UserID, identity.WorkspaceID)
	if err != nil {
		h.logger.Error("failed_to_list_templates", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve templates")
		return
	}
	if templates == nil {
		templates = []*models.RecurringTaskTemplate{}
	}

	respondJSON(w, http.StatusOK, templates)
}

// CreateTemplate creates a new active template
func (h *TemplateHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	var req CreateTemplateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	title := validation.SanitizeText(req.Title)
	if title == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Title is required and cannot be empty after sanitization")
		return
	}

	// formats were checked by the validator
	startDate, _ := models.ParseDate(req.StartDate)
	tmpl := &models.RecurringTaskTemplate{
		ID:               uuid.New(),
		UserID:           identity.UserID,
		WorkspaceID:      identity.WorkspaceID,
		Title:            title,
		Category:         validation.SanitizeText(req.Category),
		EstimatedMinutes: req.EstimatedMinutes,
		Notes:            validation.SanitizeText(req.Notes),
		Priority:         models.PriorityMedium,
		Rule:             models.RecurrenceRule(req.Rule),
		StartDate:        startDate,
		Active:           true,
	}
	if req.Priority != "" {
		tmpl.Priority = models.Priority(req.Priority)
	}
	if req.TimeOfDay != "" {
		clock, _ := models.ParseClockTime(req.TimeOfDay)
		tmpl.TimeOfDay = &clock
	}
	if req.RepeatUntil != "" {
		tmpl.RepeatUntil, _ = models.ParseDate(req.RepeatUntil)
	}
	if msg := checkLifetime(tmpl); msg != "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", msg)
		return
	}

	if err := h.templates.Create(r.Context(), tmpl); err != nil {
		h.logger.Error("failed_to_create_template", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create template")
		return
	}

	respondJSON(w, http.StatusCreated, tmpl)
}

// GetTemplate retrieves a template by ID
func (h *TemplateHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	tmpl, ok := h.loadOwned(w, r, identity)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, tmpl)
}

// UpdateTemplate applies a partial update. Changing the rule or start date of
// a template that already has instances is rejected with 409.
func (h *TemplateHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	tmpl, ok := h.loadOwned(w, r, identity)
	if !ok {
		return
	}

	var req UpdateTemplateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if msg := applyUpdate(tmpl, &req); msg != "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", msg)
		return
	}

	if err := h.templates.Update(r.Context(), tmpl); err != nil {
		switch {
		case errors.Is(err, database.ErrTemplateLocked):
			respondJSONError(w, http.StatusConflict, "Conflict", "Rule and start date cannot change once the template has been materialized")
		case errors.Is(err, database.ErrNotFound):
			respondJSONError(w, http.StatusNotFound, "Not Found", "Template not found")
		default:
			h.logger.Error("failed_to_update_template", zap.String("template_id", tmpl.ID.String()), zap.Error(err))
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update template")
		}
		return
	}

	respondJSON(w, http.StatusOK, tmpl)
}

// DeactivateTemplate stops a template from materializing; existing instances are kept
func (h *TemplateHandler) DeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	tmpl, ok := h.loadOwned(w, r, identity)
	if !ok {
		return
	}

	if err := h.templates.Deactivate(r.Context(), tmpl.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Template not found")
			return
		}
		h.logger.Error("failed_to_deactivate_template", zap.String("template_id", tmpl.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to deactivate template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PreviewOccurrences evaluates a template over [start, end] without writing anything
func (h *TemplateHandler) PreviewOccurrences(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	tmpl, ok := h.loadOwned(w, r, identity)
	if !ok {
		return
	}

	start, err := parseDateParam(r.URL.Query().Get("start"), "start")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	end, err := parseDateParam(r.URL.Query().Get("end"), "end")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	window, err := materializer.NewDateRange(start, end, MaxPreviewDays)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	preview := OccurrencePreview{
		TemplateID:  tmpl.ID,
		Rule:        tmpl.Rule,
		Start:       window.Start,
		End:         window.End,
		Occurrences: []models.Date{},
	}
	if tmpl.Active {
		if dates := recurrence.Occurrences(tmpl.Rule, tmpl.StartDate, tmpl.RepeatUntil, window.Start, window.End); dates != nil {
			preview.Occurrences = dates
		}
	}

	respondJSON(w, http.StatusOK, preview)
}

// loadOwned loads the {id} template and verifies it belongs to the caller's workspace
func (h *TemplateHandler) loadOwned(w http.ResponseWriter, r *http.Request, identity *models.Identity) (*models.RecurringTaskTemplate, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid template ID")
		return nil, false
	}

	tmpl, err := h.templates.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Template not found")
			return nil, false
		}
		h.logger.Error("failed_to_get_template", zap.String("template_id", id.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve template")
		return nil, false
	}

	if tmpl.UserID != identity.UserID || tmpl.WorkspaceID != identity.WorkspaceID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Template does not belong to user")
		return nil, false
	}
	return tmpl, true
}

// applyUpdate copies the provided fields onto tmpl. It returns a client error
// message, or "" on success.
func applyUpdate(tmpl *models.RecurringTaskTemplate, req *UpdateTemplateRequest) string {
	if req.Title != nil {
		title := validation.SanitizeText(*req.Title)
		if title == "" {
			return "Title cannot be empty after sanitization"
		}
		tmpl.Title = title
	}
	if req.Category != nil {
		tmpl.Category = validation.SanitizeText(*req.Category)
	}
	if req.EstimatedMinutes != nil {
		estimate := *req.EstimatedMinutes
		tmpl.EstimatedMinutes = &estimate
	}
	if req.Notes != nil {
		tmpl.Notes = validation.SanitizeText(*req.Notes)
	}
	if req.Priority != nil {
		tmpl.Priority = models.Priority(*req.Priority)
	}
	if req.Rule != nil {
		tmpl.Rule = models.RecurrenceRule(*req.Rule)
	}
	if req.StartDate != nil {
		tmpl.StartDate, _ = models.ParseDate(*req.StartDate)
	}
	if req.TimeOfDay != nil {
		if *req.TimeOfDay == "" {
			tmpl.TimeOfDay = nil
		} else {
			clock, err := models.ParseClockTime(*req.TimeOfDay)
			if err != nil {
				return "time_of_day: must be HH:MM"
			}
			tmpl.TimeOfDay = &clock
		}
	}
	if req.RepeatUntil != nil {
		if *req.RepeatUntil == "" {
			tmpl.RepeatUntil = models.Date{}
		} else {
			until, err := models.ParseDate(*req.RepeatUntil)
			if err != nil {
				return "repeat_until: must be YYYY-MM-DD"
			}
			tmpl.RepeatUntil = until
		}
	}
	return checkLifetime(tmpl)
}

func checkLifetime(tmpl *models.RecurringTaskTemplate) string {
	if !tmpl.RepeatUntil.IsZero() && tmpl.RepeatUntil.Before(tmpl.StartDate) {
		return "repeat_until must not be before start_date"
	}
	return ""
}
