package models

import "github.com/google/uuid"

// Identity is the authenticated caller of a request, scoped to one workspace
type Identity struct {
	UserID      uuid.UUID `json:"user_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Subject     string    `json:"subject,omitempty"`
	Email       string    `json:"email,omitempty"`
}
