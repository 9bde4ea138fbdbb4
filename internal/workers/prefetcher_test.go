package workers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/dayplan/internal/database/memstore"
	"github.com/benvon/dayplan/internal/materializer"
	"github.com/benvon/dayplan/internal/models"
	"github.com/benvon/dayplan/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockMessage records how a job was settled
type mockMessage struct {
	job      *queue.Job
	acked    bool
	nacked   bool
	requeued bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeued = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

// mockJobQueue is a mock implementation of JobQueue
type mockJobQueue struct {
	mu         sync.Mutex
	enqueued   []*queue.Job
	enqueueErr error
}

func (q *mockJobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *mockJobQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (q *mockJobQueue) Close() error                          { return nil }
func (q *mockJobQueue) HealthCheck(ctx context.Context) error { return nil }

type prefetchEnv struct {
	store      *memstore.Store
	jobs       *mockJobQueue
	prefetcher *Prefetcher
	userID     uuid.UUID
	wsID       uuid.UUID
}

func newPrefetchEnv(t *testing.T) *prefetchEnv {
	t.Helper()

	store := memstore.New()
	m := materializer.New(store, store, store.Instances(), materializer.WithMaxRangeDays(31))
	env := &prefetchEnv{
		store:  store,
		jobs:   &mockJobQueue{},
		userID: uuid.New(),
		wsID:   uuid.New(),
	}
	env.prefetcher = NewPrefetcher(m, env.jobs, zap.NewNop())

	tmpl := &models.RecurringTaskTemplate{
		UserID:      env.userID,
		WorkspaceID: env.wsID,
		Title:       "Standup",
		Priority:    models.PriorityMedium,
		Rule:        models.RuleDailyWeekdays,
		StartDate:   models.MustParseDate("2024-01-01"),
		Active:      true,
	}
	if err := store.CreateTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}
	return env
}

func (e *prefetchEnv) job(start, end string) *queue.Job {
	return queue.NewMaterializeJob(e.userID, e.wsID, models.MustParseDate(start), models.MustParseDate(end), models.VisibilityPrivate)
}

func TestPrefetcher_ProcessJob(t *testing.T) {
	t.Parallel()

	env := newPrefetchEnv(t)
	msg := &mockMessage{job: env.job("2024-01-01", "2024-01-07")}

	if err := env.prefetcher.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !msg.acked || msg.nacked {
		t.Errorf("Expected job to be acked, got acked=%v nacked=%v", msg.acked, msg.nacked)
	}
	plans, instances := env.store.Counts()
	if plans != 5 || instances != 5 {
		t.Errorf("Expected 5 weekday plans and instances, got %d plans and %d instances", plans, instances)
	}

	// processing the same window again creates nothing
	again := &mockMessage{job: env.job("2024-01-01", "2024-01-07")}
	if err := env.prefetcher.ProcessJob(context.Background(), again); err != nil {
		t.Fatalf("Expected no error on replay, got %v", err)
	}
	if _, instances := env.store.Counts(); instances != 5 {
		t.Errorf("Expected replay to be idempotent, got %d instances", instances)
	}
}

func TestPrefetcher_ExpiredJobIsDropped(t *testing.T) {
	t.Parallel()

	env := newPrefetchEnv(t)
	job := env.job("2024-01-01", "2024-01-07")
	expired := time.Now().Add(-time.Minute)
	job.NotAfter = &expired
	msg := &mockMessage{job: job}

	if err := env.prefetcher.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !msg.acked {
		t.Error("Expected expired job to be acked")
	}
	if plans, _ := env.store.Counts(); plans != 0 {
		t.Errorf("Expected no work for an expired job, got %d plans", plans)
	}
}

func TestPrefetcher_UnknownJobType(t *testing.T) {
	t.Parallel()

	env := newPrefetchEnv(t)
	job := env.job("2024-01-01", "2024-01-01")
	job.Type = "reprocess_user"
	msg := &mockMessage{job: job}

	err := env.prefetcher.ProcessJob(context.Background(), msg)
	if err == nil || !strings.Contains(err.Error(), "unknown job type") {
		t.Errorf("Expected unknown job type error, got %v", err)
	}
	if !msg.nacked || msg.requeued {
		t.Error("Expected unknown job to be dead-lettered")
	}
}

func TestPrefetcher_InvalidWindowIsDeadLettered(t *testing.T) {
	t.Parallel()

	env := newPrefetchEnv(t)
	tests := []struct {
		name  string
		start string
		end   string
	}{
		{name: "inverted", start: "2024-01-10", end: "2024-01-01"},
		{name: "too long", start: "2024-01-01", end: "2024-06-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := &mockMessage{job: env.job(tt.start, tt.end)}
			if err := env.prefetcher.ProcessJob(context.Background(), msg); err == nil {
				t.Error("Expected error but got nil")
			}
			if !msg.nacked || msg.requeued {
				t.Error("Expected invalid window to be dead-lettered without requeue")
			}
		})
	}
	if n := len(env.jobs.enqueued); n != 0 {
		t.Errorf("Expected no retries for invalid windows, got %d", n)
	}
}

func TestPrefetcher_UnitFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	env := newPrefetchEnv(t)
	env.store.InstanceFault = func(draft *models.TaskInstance) error {
		return errors.New("connection reset")
	}
	job := env.job("2024-01-01", "2024-01-02")
	msg := &mockMessage{job: job}

	err := env.prefetcher.ProcessJob(context.Background(), msg)
	if err == nil || !strings.Contains(err.Error(), "retry scheduled") {
		t.Fatalf("Expected retry scheduled error, got %v", err)
	}
	if !msg.acked {
		t.Error("Expected original message to be acked after re-enqueue")
	}
	if len(env.jobs.enqueued) != 1 {
		t.Fatalf("Expected 1 re-enqueued job, got %d", len(env.jobs.enqueued))
	}

	retry := env.jobs.enqueued[0]
	if retry.ID != job.ID {
		t.Error("Expected retry to keep the job ID")
	}
	if retry.RetryCount != 1 {
		t.Errorf("Expected RetryCount 1, got %d", retry.RetryCount)
	}
	if retry.NotBefore == nil || !retry.NotBefore.After(time.Now()) {
		t.Errorf("Expected NotBefore in the future, got %v", retry.NotBefore)
	}
	if retry.NotAfter == nil || retry.NotAfter.Before(*retry.NotBefore) {
		t.Error("Expected NotAfter to leave room for the retry to run")
	}
}

func TestPrefetcher_RetryWithoutQueueRequeues(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	store.PlanFault = func(key models.PlanKey) error { return errors.New("disk full") }
	m := materializer.New(store, store, store.Instances())
	prefetcher := NewPrefetcher(m, nil, nil)

	userID, wsID := uuid.New(), uuid.New()
	tmpl := &models.RecurringTaskTemplate{
		UserID:      userID,
		WorkspaceID: wsID,
		Title:       "Standup",
		Priority:    models.PriorityMedium,
		Rule:        models.RuleDailyWeekdays,
		StartDate:   models.MustParseDate("2024-01-01"),
		Active:      true,
	}
	if err := store.CreateTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}

	job := queue.NewMaterializeJob(userID, wsID, models.MustParseDate("2024-01-01"), models.MustParseDate("2024-01-01"), models.VisibilityPrivate)
	msg := &mockMessage{job: job}
	if err := prefetcher.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("Expected error but got nil")
	}
	if !msg.nacked || !msg.requeued {
		t.Error("Expected job to be nacked with requeue")
	}
	if job.RetryCount != 1 {
		t.Errorf("Expected RetryCount 1, got %d", job.RetryCount)
	}
}

func TestPrefetcher_MaxRetriesDeadLetters(t *testing.T) {
	t.Parallel()

	env := newPrefetchEnv(t)
	env.store.InstanceFault = func(draft *models.TaskInstance) error {
		return errors.New("connection reset")
	}
	job := env.job("2024-01-01", "2024-01-01")
	job.RetryCount = job.MaxRetries
	msg := &mockMessage{job: job}

	err := env.prefetcher.ProcessJob(context.Background(), msg)
	if err == nil || !strings.Contains(err.Error(), "dead-lettered") {
		t.Fatalf("Expected dead-lettered error, got %v", err)
	}
	if !msg.nacked || msg.requeued {
		t.Error("Expected job to be nacked without requeue")
	}
	if len(env.jobs.enqueued) != 0 {
		t.Errorf("Expected no re-enqueue, got %d", len(env.jobs.enqueued))
	}
}

func TestPrefetcher_RetryDelay(t *testing.T) {
	t.Parallel()

	p := NewPrefetcher(nil, nil, nil)
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{3, 40 * time.Second},
	}
	for _, tt := range tests {
		if got := p.retryDelay(tt.retryCount); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestPrefetcher_RunStopsOnClosedChannel(t *testing.T) {
	t.Parallel()

	env := newPrefetchEnv(t)
	messages := make(chan *queue.Message)
	errs := make(chan error, 1)
	errs <- errors.New("channel closed by broker")
	close(messages)

	done := make(chan struct{})
	go func() {
		env.prefetcher.Run(context.Background(), messages, errs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected Run to return after the message channel closed")
	}
}
