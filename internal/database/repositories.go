package database

import (
	"context"

	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
)

// TemplateRepositoryInterface defines template storage used by handlers and the materializer.
// This interface enables better testability by allowing in-memory implementations.
type TemplateRepositoryInterface interface {
	Create(ctx context.Context, tmpl *models.RecurringTaskTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.RecurringTaskTemplate, error)
	Update(ctx context.Context, tmpl *models.RecurringTaskTemplate) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListActive(ctx context.Context, userID, workspaceID uuid.UUID) ([]*models.RecurringTaskTemplate, error)
	CountInstances(ctx context.Context, templateID uuid.UUID) (int, error)
}

// PlanRepositoryInterface defines daily plan storage
type PlanRepositoryInterface interface {
	GetOrCreate(ctx context.Context, key models.PlanKey, visibility models.Visibility) (*models.DailyPlan, error)
	ListRange(ctx context.Context, userID, workspaceID uuid.UUID, start, end models.Date) ([]*models.DailyPlan, error)
}

// InstanceRepositoryInterface defines task instance storage
type InstanceRepositoryInterface interface {
	GetOrCreate(ctx context.Context, draft *models.TaskInstance) (*models.TaskInstance, bool, error)
}

// Ensure concrete types implement the interfaces
var (
	_ TemplateRepositoryInterface = (*TemplateRepository)(nil)
	_ PlanRepositoryInterface     = (*PlanRepository)(nil)
	_ InstanceRepositoryInterface = (*InstanceRepository)(nil)
)
