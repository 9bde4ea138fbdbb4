//go:build integration

package database

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/database
func openTestDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := New(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func createTestTemplate(t *testing.T, db *DB, userID, workspaceID uuid.UUID, title string) *models.RecurringTaskTemplate {
	t.Helper()

	tmpl := &models.RecurringTaskTemplate{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Title:       title,
		Priority:    models.PriorityMedium,
		Rule:        models.RuleDailyWeekdays,
		StartDate:   models.MustParseDate("2024-01-01"),
		Active:      true,
	}
	if err := NewTemplateRepository(db).Create(context.Background(), tmpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}
	return tmpl
}

func TestPlanRepository_GetOrCreateConcurrent(t *testing.T) {
	db := openTestDB(t)
	plans := NewPlanRepository(db)
	key := models.PlanKey{UserID: uuid.New(), WorkspaceID: uuid.New(), Date: models.MustParseDate("2024-01-08")}

	const workers = 16
	ids := make([]uuid.UUID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plan, err := plans.GetOrCreate(context.Background(), key, models.VisibilityPrivate)
			errs[i] = err
			if err == nil {
				ids[i] = plan.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("Expected no error, got %v", errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("Expected every caller to get plan %s, got %s", ids[0], ids[i])
		}
	}

	stored, err := plans.ListRange(context.Background(), key.UserID, key.WorkspaceID, key.Date, key.Date)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("Expected 1 stored plan, got %d", len(stored))
	}
}

func TestInstanceRepository_GetOrCreateExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	userID, workspaceID := uuid.New(), uuid.New()
	tmpl := createTestTemplate(t, db, userID, workspaceID, "Stand-up")

	plan, err := NewPlanRepository(db).GetOrCreate(ctx, models.PlanKey{UserID: userID, WorkspaceID: workspaceID, Date: models.MustParseDate("2024-01-08")}, models.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Failed to create plan: %v", err)
	}
	instances := NewInstanceRepository(db)

	const workers = 16
	ids := make([]uuid.UUID, workers)
	created := make([]bool, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, wasCreated, err := instances.GetOrCreate(ctx, tmpl.Instantiate(plan, nil))
			errs[i] = err
			if err == nil {
				ids[i] = inst.ID
				created[i] = wasCreated
			}
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("Expected no error, got %v", errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("Expected every caller to get instance %s, got %s", ids[0], ids[i])
		}
		if created[i] {
			creators++
		}
	}
	if creators != 1 {
		t.Errorf("Expected exactly 1 creating call, got %d", creators)
	}

	count, err := NewTemplateRepository(db).CountInstances(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 stored instance, got %d", count)
	}
}

func TestInstanceRepository_UniquePositions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	userID, workspaceID := uuid.New(), uuid.New()

	plan, err := NewPlanRepository(db).GetOrCreate(ctx, models.PlanKey{UserID: userID, WorkspaceID: workspaceID, Date: models.MustParseDate("2024-01-09")}, models.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Failed to create plan: %v", err)
	}
	instances := NewInstanceRepository(db)

	const templates = 8
	drafts := make([]*models.TaskInstance, templates)
	for i := range drafts {
		drafts[i] = createTestTemplate(t, db, userID, workspaceID, "Task").Instantiate(plan, nil)
	}

	positions := make([]int, templates)
	errs := make([]error, templates)
	var wg sync.WaitGroup
	for i := range drafts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, _, err := instances.GetOrCreate(ctx, drafts[i])
			errs[i] = err
			if err == nil {
				positions[i] = inst.Position
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i := range drafts {
		if errs[i] != nil {
			t.Fatalf("Expected no error, got %v", errs[i])
		}
		if seen[positions[i]] {
			t.Errorf("Expected unique positions, got duplicate %d", positions[i])
		}
		seen[positions[i]] = true
	}
}
