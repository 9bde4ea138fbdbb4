// Package materializer turns recurring task templates into concrete task
// instances on daily plans, lazily, for whatever window a caller requests.
package materializer

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/dayplan/internal/metrics"
	"github.com/benvon/dayplan/internal/models"
	"github.com/benvon/dayplan/internal/recurrence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/benvon/dayplan/internal/materializer"

// DefaultMaxRangeDays bounds a single range request
const DefaultMaxRangeDays = 62

// Request asks for every date in Range to be materialized for one user in one workspace
type Request struct {
	UserID      uuid.UUID
	WorkspaceID uuid.UUID
	Range       DateRange
	// Visibility is applied to plans created by this call. Empty means private.
	Visibility models.Visibility
	// Form labels metrics and traces: "date", "range" or "prefetch"
	Form string
}

// UnitFailure records a (date, template) pair that could not be persisted
type UnitFailure struct {
	Date       models.Date `json:"date"`
	TemplateID uuid.UUID   `json:"template_id"`
	Message    string      `json:"message"`
	Err        error       `json:"-"`
}

// Result is the outcome of one materialization call
type Result struct {
	// Plans holds one entry per requested date in chronological order.
	// Dates without a stored plan get a placeholder.
	Plans []*models.DailyPlan `json:"plans"`
	// SucceededDates lists dates where every applicable template was ensured
	SucceededDates []models.Date `json:"succeeded_dates"`
	Failures       []UnitFailure `json:"failures"`
	Created        int           `json:"created"`
	Existing       int           `json:"existing"`
}

// Plan returns the first stored plan in the result, or nil when none exists
func (r *Result) Plan() *models.DailyPlan {
	for _, plan := range r.Plans {
		if !plan.Placeholder {
			return plan
		}
	}
	return nil
}

// Materializer expands templates into plans and instances. It is safe for
// concurrent use; idempotence and uniqueness are enforced by the stores.
type Materializer struct {
	templates    TemplateRegistry
	plans        PlanStore
	instances    InstanceStore
	rollover     Rollover
	logger       *zap.Logger
	tracer       trace.Tracer
	location     *time.Location
	now          func() time.Time
	maxRangeDays int
}

// Option configures a Materializer
type Option func(*Materializer)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Materializer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRollover sets the collaborator invoked before materializing today
func WithRollover(rollover Rollover) Option {
	return func(m *Materializer) {
		if rollover != nil {
			m.rollover = rollover
		}
	}
}

// WithLocation sets the zone used for "today" and for instance start times
func WithLocation(loc *time.Location) Option {
	return func(m *Materializer) {
		if loc != nil {
			m.location = loc
		}
	}
}

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMaxRangeDays bounds range requests; values <= 0 disable the bound
func WithMaxRangeDays(days int) Option {
	return func(m *Materializer) {
		m.maxRangeDays = days
	}
}

// New creates a materializer over the given stores
func New(templates TemplateRegistry, plans PlanStore, instances InstanceStore, opts ...Option) *Materializer {
	m := &Materializer{
		templates:    templates,
		plans:        plans,
		instances:    instances,
		rollover:     NopRollover{},
		logger:       zap.NewNop(),
		tracer:       otel.Tracer(tracerName),
		location:     time.UTC,
		now:          time.Now,
		maxRangeDays: DefaultMaxRangeDays,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Today returns the current calendar date in the materializer's location
func (m *Materializer) Today() models.Date {
	return models.DateOf(m.now().In(m.location))
}

// Location returns the zone used for dates and start times
func (m *Materializer) Location() *time.Location {
	return m.location
}

// MaxRangeDays returns the configured range bound
func (m *Materializer) MaxRangeDays() int {
	return m.maxRangeDays
}

// MaterializeDate materializes a single date. When date is today the rollover
// collaborator runs first, carrying yesterday's incomplete tasks forward.
func (m *Materializer) MaterializeDate(ctx context.Context, userID, workspaceID uuid.UUID, date models.Date, visibility models.Visibility) (*Result, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidRange)
	}

	if today := m.Today(); date.Equal(today) {
		if err := m.rollover.Rollover(ctx, userID, workspaceID, today.AddDays(-1), today); err != nil {
			m.logger.Warn("rollover_failed",
				zap.String("user_id", userID.String()),
				zap.String("workspace_id", workspaceID.String()),
				zap.String("date", today.String()),
				zap.Error(err),
			)
		}
	}

	return m.Materialize(ctx, Request{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Range:       SingleDay(date),
		Visibility:  visibility,
		Form:        "date",
	})
}

// Materialize ensures a plan and an instance exist for every (date, template)
// occurrence in req.Range, then returns the plans covering the range. Storage
// failures abort only the affected unit and are reported in Result.Failures.
func (m *Materializer) Materialize(ctx context.Context, req Request) (*Result, error) {
	if err := req.Range.Validate(m.maxRangeDays); err != nil {
		return nil, err
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPrivate
	}
	if req.Form == "" {
		req.Form = "range"
	}

	started := time.Now()
	ctx, span := m.tracer.Start(ctx, "materializer.Materialize",
		trace.WithAttributes(
			attribute.String("dayplan.user_id", req.UserID.String()),
			attribute.String("dayplan.workspace_id", req.WorkspaceID.String()),
			attribute.String("dayplan.range", req.Range.String()),
			attribute.String("dayplan.form", req.Form),
		),
	)
	defer span.End()

	templates, err := m.templates.ListActive(ctx, req.UserID, req.WorkspaceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list templates")
		return nil, fmt.Errorf("failed to list active templates: %w", err)
	}

	result := &Result{
		SucceededDates: []models.Date{},
		Failures:       []UnitFailure{},
	}

	for _, day := range req.Range.Days() {
		if m.materializeDay(ctx, req, day, templates, result) {
			result.SucceededDates = append(result.SucceededDates, day)
		}
	}

	plans, err := m.plans.ListRange(ctx, req.UserID, req.WorkspaceID, req.Range.Start, req.Range.End)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list plans")
		return nil, fmt.Errorf("failed to list plans for %s: %w", req.Range, err)
	}
	result.Plans = fillPlaceholders(req, plans)

	metrics.RecordMaterialization(req.Form, result.Created, result.Existing, len(result.Failures), time.Since(started))
	span.SetAttributes(
		attribute.Int("dayplan.templates", len(templates)),
		attribute.Int("dayplan.created", result.Created),
		attribute.Int("dayplan.failures", len(result.Failures)),
	)

	m.logger.Debug("materialization_completed",
		zap.String("user_id", req.UserID.String()),
		zap.String("workspace_id", req.WorkspaceID.String()),
		zap.String("range", req.Range.String()),
		zap.Int("templates", len(templates)),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("duration", time.Since(started)),
	)

	return result, nil
}

// materializeDay ensures every applicable template on day. It reports whether
// all units for the day succeeded.
func (m *Materializer) materializeDay(ctx context.Context, req Request, day models.Date, templates []*models.RecurringTaskTemplate, result *Result) bool {
	var plan *models.DailyPlan
	ok := true

	for _, tmpl := range templates {
		if tmpl.StartDate.IsZero() || tmpl.ExpiredOn(day) {
			continue
		}
		if !recurrence.Matches(tmpl.Rule, tmpl.StartDate, day) {
			continue
		}

		if plan == nil {
			key := models.PlanKey{UserID: req.UserID, WorkspaceID: req.WorkspaceID, Date: day}
			p, err := m.plans.GetOrCreate(ctx, key, req.Visibility)
			if err != nil {
				m.recordFailure(result, day, tmpl.ID, fmt.Errorf("failed to ensure plan: %w", err))
				ok = false
				continue
			}
			plan = p
		}

		_, created, err := m.instances.GetOrCreate(ctx, tmpl.Instantiate(plan, m.location))
		if err != nil {
			m.recordFailure(result, day, tmpl.ID, fmt.Errorf("failed to ensure instance: %w", err))
			ok = false
			continue
		}
		if created {
			result.Created++
		} else {
			result.Existing++
		}
	}

	return ok
}

func (m *Materializer) recordFailure(result *Result, day models.Date, templateID uuid.UUID, err error) {
	result.Failures = append(result.Failures, UnitFailure{
		Date:       day,
		TemplateID: templateID,
		Message:    err.Error(),
		Err:        err,
	})
	m.logger.Warn("materialization_unit_failed",
		zap.String("date", day.String()),
		zap.String("template_id", templateID.String()),
		zap.Error(err),
	)
}

// fillPlaceholders returns one plan per day of the range, substituting empty
// placeholders where no plan is stored.
func fillPlaceholders(req Request, stored []*models.DailyPlan) []*models.DailyPlan {
	byDate := make(map[string]*models.DailyPlan, len(stored))
	for _, plan := range stored {
		if plan.Tasks == nil {
			plan.Tasks = []*models.TaskInstance{}
		}
		byDate[plan.Date.String()] = plan
	}

	days := req.Range.Days()
	plans := make([]*models.DailyPlan, 0, len(days))
	for _, day := range days {
		if plan, ok := byDate[day.String()]; ok {
			plans = append(plans, plan)
			continue
		}
		key := models.PlanKey{UserID: req.UserID, WorkspaceID: req.WorkspaceID, Date: day}
		plans = append(plans, models.NewPlaceholderPlan(key, req.Visibility))
	}
	return plans
}
