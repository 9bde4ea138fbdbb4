package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Visibility controls who in the workspace can see a daily plan
type Visibility string

const (
	VisibilityPrivate   Visibility = "private"
	VisibilityWorkspace Visibility = "workspace"
)

// ParseVisibility validates a visibility string
func ParseVisibility(value string) (Visibility, error) {
	switch v := Visibility(value); v {
	case VisibilityPrivate, VisibilityWorkspace:
		return v, nil
	default:
		return "", fmt.Errorf("invalid visibility: %s (must be 'private' or 'workspace')", value)
	}
}

// PlanKey identifies a daily plan; at most one plan exists per key
type PlanKey struct {
	UserID      uuid.UUID
	WorkspaceID uuid.UUID
	Date        Date
}

func (k PlanKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.UserID, k.WorkspaceID, k.Date)
}

// DailyPlan is one user's plan for one day within a workspace
type DailyPlan struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	WorkspaceID uuid.UUID       `json:"workspace_id"`
	Date        Date            `json:"date"`
	Visibility  Visibility      `json:"visibility"`
	Submitted   bool            `json:"submitted"`
	Reviewed    bool            `json:"reviewed"`
	Placeholder bool            `json:"placeholder,omitempty"`
	Tasks       []*TaskInstance `json:"tasks"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Key returns the plan's uniqueness key
func (p *DailyPlan) Key() PlanKey {
	return PlanKey{UserID: p.UserID, WorkspaceID: p.WorkspaceID, Date: p.Date}
}

// NewPlaceholderPlan returns an unsaved, empty plan used to fill calendar gaps
func NewPlaceholderPlan(key PlanKey, visibility Visibility) *DailyPlan {
	return &DailyPlan{
		UserID:      key.UserID,
		WorkspaceID: key.WorkspaceID,
		Date:        key.Date,
		Visibility:  visibility,
		Placeholder: true,
		Tasks:       []*TaskInstance{},
	}
}
