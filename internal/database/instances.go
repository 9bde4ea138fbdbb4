package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
)

const instanceColumns = `id, plan_id, parent_template_id, title, category, status, priority, notes,
		estimated_minutes, actual_minutes, due_date, recurrence_rule, recurrence_time, repeat_until,
		start_time, end_time, position, active, subtasks, attachments, created_at, updated_at`

// InstanceRepository handles task instance operations
type InstanceRepository struct {
	db *DB
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// GetOrCreate returns the instance of draft.ParentTemplateID on draft.PlanID,
// inserting draft at the end of the plan when none exists. The plan row is
// locked for the duration so that position assignment cannot race.
func (r *InstanceRepository) GetOrCreate(ctx context.Context, draft *models.TaskInstance) (*models.TaskInstance, bool, error) {
	if draft.ParentTemplateID == nil {
		return nil, false, fmt.Errorf("instance draft has no parent template")
	}

	var (
		inst    *models.TaskInstance
		created bool
	)
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var planID uuid.UUID
		err := tx.QueryRowContext(ctx, `SELECT id FROM daily_plans WHERE id = $1 FOR UPDATE`, draft.PlanID).Scan(&planID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("plan %s: %w", draft.PlanID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock plan: %w", err)
		}

		existing, err := findInstance(ctx, tx, draft.PlanID, *draft.ParentTemplateID)
		if err == nil {
			inst = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		inst, err = insertInstance(ctx, tx, draft)
		if err != nil {
			return err
		}
		created = true
		return nil
	})

	if err != nil && IsUniqueViolation(err) {
		// a writer that does not take the plan lock got there first
		existing, lookupErr := findInstance(ctx, r.db, draft.PlanID, *draft.ParentTemplateID)
		if lookupErr != nil {
			return nil, false, fmt.Errorf("failed to load instance after conflict: %w", lookupErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure instance: %w", err)
	}
	return inst, created, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findInstance(ctx context.Context, q queryRower, planID, templateID uuid.UUID) (*models.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM task_instances
		WHERE plan_id = $1 AND parent_template_id = $2
	`

	inst, err := scanInstance(q.QueryRowContext(ctx, query, planID, templateID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// insertInstance stores draft at position MAX(position)+1. The caller holds the plan lock.
func insertInstance(ctx context.Context, tx *sql.Tx, draft *models.TaskInstance) (*models.TaskInstance, error) {
	subtasks, err := json.Marshal(nonNilSubtasks(draft.Subtasks))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subtasks: %w", err)
	}
	attachments, err := json.Marshal(nonNilAttachments(draft.Attachments))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attachments: %w", err)
	}

	id := draft.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := draft.Status
	if status == "" {
		status = models.TaskStatusPlanned
	}
	var rule *string
	if draft.Rule != nil {
		s := string(*draft.Rule)
		rule = &s
	}

	query := `
		INSERT INTO task_instances (
			id, plan_id, parent_template_id, title, category, status, priority, notes,
			estimated_minutes, actual_minutes, due_date, recurrence_rule, recurrence_time, repeat_until,
			start_time, end_time, position, active, subtasks, attachments, created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM task_instances WHERE plan_id = $2),
			$17, $18, $19, $20, $20
		)
		RETURNING ` + instanceColumns

	inst, err := scanInstance(tx.QueryRowContext(ctx, query,
		id,
		draft.PlanID,
		draft.ParentTemplateID,
		draft.Title,
		draft.Category,
		string(status),
		string(draft.Priority),
		draft.Notes,
		draft.EstimatedMinutes,
		draft.ActualMinutes,
		draft.DueDate,
		rule,
		draft.TimeOfDay,
		draft.RepeatUntil,
		draft.StartTime,
		draft.EndTime,
		draft.Active,
		string(subtasks),
		string(attachments),
		time.Now(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert instance: %w", err)
	}
	return inst, nil
}

func scanInstance(row rowScanner) (*models.TaskInstance, error) {
	inst := &models.TaskInstance{}
	var (
		parentID    uuid.NullUUID
		estimate    sql.NullInt64
		actual      sql.NullInt64
		rule        sql.NullString
		clock       sql.NullString
		startTime   sql.NullTime
		endTime     sql.NullTime
		subtasks    []byte
		attachments []byte
	)

	err := row.Scan(
		&inst.ID,
		&inst.PlanID,
		&parentID,
		&inst.Title,
		&inst.Category,
		&inst.Status,
		&inst.Priority,
		&inst.Notes,
		&estimate,
		&actual,
		&inst.DueDate,
		&rule,
		&clock,
		&inst.RepeatUntil,
		&startTime,
		&endTime,
		&inst.Position,
		&inst.Active,
		&subtasks,
		&attachments,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		id := parentID.UUID
		inst.ParentTemplateID = &id
	}
	if estimate.Valid {
		v := int(estimate.Int64)
		inst.EstimatedMinutes = &v
	}
	if actual.Valid {
		v := int(actual.Int64)
		inst.ActualMinutes = &v
	}
	if rule.Valid {
		r := models.RecurrenceRule(rule.String)
		inst.Rule = &r
	}
	if clock.Valid {
		c, err := models.ParseClockTime(clock.String)
		if err != nil {
			return nil, err
		}
		inst.TimeOfDay = &c
	}
	if startTime.Valid {
		inst.StartTime = &startTime.Time
	}
	if endTime.Valid {
		inst.EndTime = &endTime.Time
	}
	if err := json.Unmarshal(subtasks, &inst.Subtasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subtasks: %w", err)
	}
	if err := json.Unmarshal(attachments, &inst.Attachments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
	}
	inst.Subtasks = nonNilSubtasks(inst.Subtasks)
	inst.Attachments = nonNilAttachments(inst.Attachments)
	return inst, nil
}

func nonNilSubtasks(s []*models.Subtask) []*models.Subtask {
	if s == nil {
		return []*models.Subtask{}
	}
	return s
}

func nonNilAttachments(a []*models.Attachment) []*models.Attachment {
	if a == nil {
		return []*models.Attachment{}
	}
	return a
}
