package materializer

import (
	"context"

	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
)

// TemplateRegistry returns the active root templates of a user within a workspace
type TemplateRegistry interface {
	ListActive(ctx context.Context, userID, workspaceID uuid.UUID) ([]*models.RecurringTaskTemplate, error)
}

// PlanStore persists daily plans. GetOrCreate must be atomic with respect to
// the (user, workspace, date) key: concurrent callers observe a single plan.
type PlanStore interface {
	GetOrCreate(ctx context.Context, key models.PlanKey, visibility models.Visibility) (*models.DailyPlan, error)
	// ListRange returns existing plans in [start, end] with tasks attached,
	// tasks ordered by position then creation time.
	ListRange(ctx context.Context, userID, workspaceID uuid.UUID, start, end models.Date) ([]*models.DailyPlan, error)
}

// InstanceStore persists task instances. GetOrCreate is keyed strictly on
// (draft.PlanID, draft.ParentTemplateID); the existence check, position
// assignment and insert happen in one atomic unit. created reports whether the
// returned instance was inserted by this call.
type InstanceStore interface {
	GetOrCreate(ctx context.Context, draft *models.TaskInstance) (inst *models.TaskInstance, created bool, err error)
}

// Rollover carries incomplete tasks from one day's plan into the next. It is
// owned elsewhere; the materializer only invokes it.
type Rollover interface {
	Rollover(ctx context.Context, userID, workspaceID uuid.UUID, from, to models.Date) error
}

// NopRollover does nothing
type NopRollover struct{}

func (NopRollover) Rollover(context.Context, uuid.UUID, uuid.UUID, models.Date, models.Date) error {
	return nil
}
