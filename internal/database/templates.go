package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
)

const templateColumns = `id, user_id, workspace_id, title, category, estimated_minutes, notes, priority,
		rule, start_date, time_of_day, repeat_until, active, parent_template_id, created_at, updated_at`

// TemplateRepository handles recurring task template operations
type TemplateRepository struct {
	db *DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a new template
func (r *TemplateRepository) Create(ctx context.Context, tmpl *models.RecurringTaskTemplate) error {
	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}

	query := `
		INSERT INTO recurring_task_templates (
			id, user_id, workspace_id, title, category, estimated_minutes, notes, priority,
			rule, start_date, time_of_day, repeat_until, active, parent_template_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		tmpl.ID,
		tmpl.UserID,
		tmpl.WorkspaceID,
		tmpl.Title,
		tmpl.Category,
		tmpl.EstimatedMinutes,
		tmpl.Notes,
		string(tmpl.Priority),
		string(tmpl.Rule),
		tmpl.StartDate,
		tmpl.TimeOfDay,
		tmpl.RepeatUntil,
		tmpl.Active,
		tmpl.ParentTemplateID,
		time.Now(),
	).Scan(&tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

// GetByID retrieves a template by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RecurringTaskTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM recurring_task_templates WHERE id = $1`

	tmpl, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

// Update writes the template's mutable fields. The rule and start date can
// only change while no instance references the template.
func (r *TemplateRepository) Update(ctx context.Context, tmpl *models.RecurringTaskTemplate) error {
	query := `
		UPDATE recurring_task_templates t
		SET title = $2, category = $3, estimated_minutes = $4, notes = $5, priority = $6,
			rule = $7, start_date = $8, time_of_day = $9, repeat_until = $10, active = $11, updated_at = $12
		WHERE t.id = $1
		  AND (
			(t.rule = $7 AND t.start_date IS NOT DISTINCT FROM $8::date)
			OR NOT EXISTS (SELECT 1 FROM task_instances i WHERE i.parent_template_id = t.id)
		  )
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		tmpl.ID,
		tmpl.Title,
		tmpl.Category,
		tmpl.EstimatedMinutes,
		tmpl.Notes,
		string(tmpl.Priority),
		string(tmpl.Rule),
		tmpl.StartDate,
		tmpl.TimeOfDay,
		tmpl.RepeatUntil,
		tmpl.Active,
		time.Now(),
	).Scan(&tmpl.CreatedAt, &tmpl.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, tmpl.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("template %s: %w", tmpl.ID, ErrTemplateLocked)
	}
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

// Deactivate marks a template inactive. Existing instances are kept.
func (r *TemplateRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE recurring_task_templates SET active = FALSE, updated_at = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to deactivate template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListActive returns the active root templates of a user in a workspace, oldest first
func (r *TemplateRepository) ListActive(ctx context.Context, userID, workspaceID uuid.UUID) ([]*models.RecurringTaskTemplate, error) {
	query := `SELECT ` + templateColumns + `
		FROM recurring_task_templates
		WHERE user_id = $1 AND workspace_id = $2 AND active AND parent_template_id IS NULL
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.RecurringTaskTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// CountInstances returns how many task instances reference a template
func (r *TemplateRepository) CountInstances(ctx context.Context, templateID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_instances WHERE parent_template_id = $1`, templateID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.RecurringTaskTemplate, error) {
	tmpl := &models.RecurringTaskTemplate{}
	var (
		estimate  sql.NullInt64
		timeOfDay sql.NullString
		parentID  uuid.NullUUID
	)

	err := row.Scan(
		&tmpl.ID,
		&tmpl.UserID,
		&tmpl.WorkspaceID,
		&tmpl.Title,
		&tmpl.Category,
		&estimate,
		&tmpl.Notes,
		&tmpl.Priority,
		&tmpl.Rule,
		&tmpl.StartDate,
		&timeOfDay,
		&tmpl.RepeatUntil,
		&tmpl.Active,
		&parentID,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if estimate.Valid {
		v := int(estimate.Int64)
		tmpl.EstimatedMinutes = &v
	}
	if timeOfDay.Valid {
		clock, err := models.ParseClockTime(timeOfDay.String)
		if err != nil {
			return nil, err
		}
		tmpl.TimeOfDay = &clock
	}
	if parentID.Valid {
		id := parentID.UUID
		tmpl.ParentTemplateID = &id
	}
	return tmpl, nil
}
