package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the user-assigned importance of a task
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// RecurringTaskTemplate is a user-defined recurring task. Templates are never
// scheduled themselves; they are expanded into TaskInstances per occurrence.
type RecurringTaskTemplate struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"user_id"`
	WorkspaceID      uuid.UUID      `json:"workspace_id"`
	Title            string         `json:"title"`
	Category         string         `json:"category"`
	EstimatedMinutes *int           `json:"estimated_minutes"`
	Notes            string         `json:"notes"`
	Priority         Priority       `json:"priority"`
	Rule             RecurrenceRule `json:"rule"`
	StartDate        Date           `json:"start_date"`
	TimeOfDay        *ClockTime     `json:"time_of_day"`
	RepeatUntil      Date           `json:"repeat_until"`
	Active           bool           `json:"active"`
	ParentTemplateID *uuid.UUID     `json:"parent_template_id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ExpiredOn reports whether d falls after the template's inclusive repeat-until date
func (t *RecurringTaskTemplate) ExpiredOn(d Date) bool {
	return !t.RepeatUntil.IsZero() && d.After(t.RepeatUntil)
}

// Instantiate projects the template onto plan as an unsaved TaskInstance.
// Descriptive fields are copied, so later template edits do not reach the instance.
// Position is left for the instance store to assign.
func (t *RecurringTaskTemplate) Instantiate(plan *DailyPlan, loc *time.Location) *TaskInstance {
	templateID := t.ID
	inst := &TaskInstance{
		PlanID:           plan.ID,
		ParentTemplateID: &templateID,
		Title:            t.Title,
		Category:         t.Category,
		Status:           TaskStatusPlanned,
		Priority:         t.Priority,
		Notes:            t.Notes,
		Active:           false,
		Subtasks:         []*Subtask{},
		Attachments:      []*Attachment{},
	}
	if t.EstimatedMinutes != nil {
		estimate := *t.EstimatedMinutes
		inst.EstimatedMinutes = &estimate
	}

	if t.TimeOfDay != nil {
		start := plan.Date.At(*t.TimeOfDay, loc)
		inst.StartTime = &start
		if inst.EstimatedMinutes != nil {
			end := start.Add(time.Duration(*inst.EstimatedMinutes) * time.Minute)
			inst.EndTime = &end
		}
	}

	return inst
}
