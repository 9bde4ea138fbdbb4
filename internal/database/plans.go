package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const planColumns = `id, user_id, workspace_id, plan_date, visibility, submitted, reviewed, created_at, updated_at`

// PlanRepository handles daily plan operations
type PlanRepository struct {
	db *DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetOrCreate returns the plan for key, inserting it with visibility when absent.
// Concurrent callers for the same key all receive the single stored row.
func (r *PlanRepository) GetOrCreate(ctx context.Context, key models.PlanKey, visibility models.Visibility) (*models.DailyPlan, error) {
	insert := `
		INSERT INTO daily_plans (id, user_id, workspace_id, plan_date, visibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT ON CONSTRAINT daily_plans_user_workspace_date_key DO NOTHING
		RETURNING ` + planColumns

	plan, err := scanPlan(r.db.QueryRowContext(ctx, insert,
		uuid.New(),
		key.UserID,
		key.WorkspaceID,
		key.Date,
		string(visibility),
		time.Now(),
	))
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	// DO NOTHING returns no row when the plan already exists
	plan, err = r.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// GetByKey retrieves a plan without its tasks
func (r *PlanRepository) GetByKey(ctx context.Context, key models.PlanKey) (*models.DailyPlan, error) {
	query := `SELECT ` + planColumns + `
		FROM daily_plans
		WHERE user_id = $1 AND workspace_id = $2 AND plan_date = $3
	`

	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, key.UserID, key.WorkspaceID, key.Date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// ListRange returns the stored plans in [start, end] ordered by date, each
// with its tasks ordered by position then creation time
func (r *PlanRepository) ListRange(ctx context.Context, userID, workspaceID uuid.UUID, start, end models.Date) ([]*models.DailyPlan, error) {
	query := `SELECT ` + planColumns + `
		FROM daily_plans
		WHERE user_id = $1 AND workspace_id = $2 AND plan_date BETWEEN $3 AND $4
		ORDER BY plan_date
	`

	rows, err := r.db.QueryContext(ctx, query, userID, workspaceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.DailyPlan
	byID := make(map[uuid.UUID]*models.DailyPlan)
	var ids []string
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plan.Tasks = []*models.TaskInstance{}
		plans = append(plans, plan)
		byID[plan.ID] = plan
		ids = append(ids, plan.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	if len(plans) == 0 {
		return plans, nil
	}

	taskQuery := `SELECT ` + instanceColumns + `
		FROM task_instances
		WHERE plan_id = ANY($1::uuid[])
		ORDER BY plan_id, position, created_at
	`
	taskRows, err := r.db.QueryContext(ctx, taskQuery, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer taskRows.Close()

	for taskRows.Next() {
		task, err := scanInstance(taskRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if plan, ok := byID[task.PlanID]; ok {
			plan.Tasks = append(plan.Tasks, task)
		}
	}
	if err := taskRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return plans, nil
}

func scanPlan(row rowScanner) (*models.DailyPlan, error) {
	plan := &models.DailyPlan{}
	err := row.Scan(
		&plan.ID,
		&plan.UserID,
		&plan.WorkspaceID,
		&plan.Date,
		&plan.Visibility,
		&plan.Submitted,
		&plan.Reviewed,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return plan, nil
}
