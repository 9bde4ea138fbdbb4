package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task instance
type TaskStatus string

const (
	TaskStatusPlanned    TaskStatus = "planned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// TaskInstance is a concrete task on a daily plan. Instances produced by
// materialization carry ParentTemplateID and are never recurrence sources.
type TaskInstance struct {
	ID               uuid.UUID       `json:"id"`
	PlanID           uuid.UUID       `json:"plan_id"`
	ParentTemplateID *uuid.UUID      `json:"parent_template_id"`
	Title            string          `json:"title"`
	Category         string          `json:"category"`
	Status           TaskStatus      `json:"status"`
	Priority         Priority        `json:"priority"`
	Notes            string          `json:"notes"`
	EstimatedMinutes *int            `json:"estimated_minutes"`
	ActualMinutes    *int            `json:"actual_minutes"`
	DueDate          Date            `json:"due_date"`
	Rule             *RecurrenceRule `json:"recurrence_rule"`
	TimeOfDay        *ClockTime      `json:"recurrence_time"`
	RepeatUntil      Date            `json:"repeat_until"`
	StartTime        *time.Time      `json:"start_time"`
	EndTime          *time.Time      `json:"end_time"`
	Position         int             `json:"position"`
	Active           bool            `json:"active"`
	Subtasks         []*Subtask      `json:"subtasks"`
	Attachments      []*Attachment   `json:"attachments"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Subtask and Attachment are owned by other parts of the application and are
// passed through unchanged.
type Subtask struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
}

type Attachment struct {
	ID       uuid.UUID `json:"id"`
	FileName string    `json:"file_name"`
	URL      string    `json:"url"`
}

// SortTasks orders tasks by position, then creation time
func SortTasks(tasks []*TaskInstance) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
