package queue

import (
	"fmt"
	"time"

	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeMaterializeWindow materializes a date window ahead of the caller reading it
	JobTypeMaterializeWindow JobType = "materialize_window"
)

// DefaultJobTTL bounds how long a prefetch job stays useful after it is queued
const DefaultJobTTL = 15 * time.Minute

// Job represents a job in the queue
type Job struct {
	ID          uuid.UUID         `json:"id"`
	Type        JobType           `json:"type"`
	UserID      uuid.UUID         `json:"user_id"`
	WorkspaceID uuid.UUID         `json:"workspace_id"`
	Start       models.Date       `json:"start"`
	End         models.Date       `json:"end"`
	Visibility  models.Visibility `json:"visibility,omitempty"`
	NotBefore   *time.Time        `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter    *time.Time        `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	CreatedAt   time.Time         `json:"created_at"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
}

// NewMaterializeJob creates a job that materializes [start, end] for one user in one workspace
func NewMaterializeJob(userID, workspaceID uuid.UUID, start, end models.Date, visibility models.Visibility) *Job {
	now := time.Now()
	notAfter := now.Add(DefaultJobTTL)
	return &Job{
		ID:          uuid.New(),
		Type:        JobTypeMaterializeWindow,
		UserID:      userID,
		WorkspaceID: workspaceID,
		Start:       start,
		End:         end,
		Visibility:  visibility,
		NotAfter:    &notAfter,
		CreatedAt:   now,
		RetryCount:  0,
		MaxRetries:  3,
	}
}

// DedupeKey identifies jobs that would do identical work
func (j *Job) DedupeKey() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s", j.Type, j.UserID, j.WorkspaceID, j.Start, j.End, j.Visibility)
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
