package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/benvon/dayplan/internal/database"
	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
)

func TestStore_PlanGetOrCreateIsUniquePerKey(t *testing.T) {
	t.Parallel()

	store := New()
	key := models.PlanKey{UserID: uuid.New(), WorkspaceID: uuid.New(), Date: models.MustParseDate("2024-01-01")}

	const callers = 32
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plan, err := store.GetOrCreate(context.Background(), key, models.VisibilityPrivate)
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
				return
			}
			ids[i] = plan.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("Expected every caller to observe plan %s, caller %d got %s", ids[0], i, ids[i])
		}
	}
	if plans, _ := store.Counts(); plans != 1 {
		t.Errorf("Expected 1 plan, got %d", plans)
	}
}

func TestStore_InstanceGetOrCreate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	key := models.PlanKey{UserID: uuid.New(), WorkspaceID: uuid.New(), Date: models.MustParseDate("2024-01-01")}
	plan, err := store.GetOrCreate(ctx, key, models.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	templateA := &models.RecurringTaskTemplate{ID: uuid.New(), Title: "A"}
	templateB := &models.RecurringTaskTemplate{ID: uuid.New(), Title: "B"}

	first, created, err := store.Instances().GetOrCreate(ctx, templateA.Instantiate(plan, nil))
	if err != nil || !created {
		t.Fatalf("Expected first insert to create, got created=%v err=%v", created, err)
	}
	if first.Position != 1 {
		t.Errorf("Expected position 1 in an empty plan, got %d", first.Position)
	}

	again, created, err := store.Instances().GetOrCreate(ctx, templateA.Instantiate(plan, nil))
	if err != nil || created {
		t.Fatalf("Expected second insert to find the existing row, got created=%v err=%v", created, err)
	}
	if again.ID != first.ID {
		t.Errorf("Expected instance %s, got %s", first.ID, again.ID)
	}

	second, created, err := store.Instances().GetOrCreate(ctx, templateB.Instantiate(plan, nil))
	if err != nil || !created {
		t.Fatalf("Expected template B to create, got created=%v err=%v", created, err)
	}
	if second.Position != 2 {
		t.Errorf("Expected position 2, got %d", second.Position)
	}
}

func TestStore_InstanceGetOrCreateRequiresPlan(t *testing.T) {
	t.Parallel()

	templateID := uuid.New()
	_, _, err := New().Instances().GetOrCreate(context.Background(), &models.TaskInstance{
		PlanID:           uuid.New(),
		ParentTemplateID: &templateID,
	})
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_PositionsStayUniqueUnderConcurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	plan, err := store.GetOrCreate(ctx, models.PlanKey{UserID: uuid.New(), WorkspaceID: uuid.New(), Date: models.MustParseDate("2024-01-01")}, models.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	const templates = 20
	var wg sync.WaitGroup
	for i := 0; i < templates; i++ {
		tmpl := &models.RecurringTaskTemplate{ID: uuid.New()}
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, _, err := store.Instances().GetOrCreate(ctx, tmpl.Instantiate(plan, nil)); err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
			}()
		}
	}
	wg.Wait()

	plans, err := store.ListRange(ctx, plan.UserID, plan.WorkspaceID, plan.Date, plan.Date)
	if err != nil || len(plans) != 1 {
		t.Fatalf("Expected 1 plan, got %d (err=%v)", len(plans), err)
	}
	seen := make(map[int]bool)
	for _, task := range plans[0].Tasks {
		if seen[task.Position] {
			t.Errorf("Duplicate position %d", task.Position)
		}
		seen[task.Position] = true
	}
	if len(plans[0].Tasks) != templates {
		t.Errorf("Expected %d tasks, got %d", templates, len(plans[0].Tasks))
	}
}

func TestStore_ListActiveFiltersScopeAndState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	user, workspace := uuid.New(), uuid.New()
	parent := uuid.New()

	fixtures := []*models.RecurringTaskTemplate{
		{Title: "mine", UserID: user, WorkspaceID: workspace, Active: true},
		{Title: "inactive", UserID: user, WorkspaceID: workspace, Active: false},
		{Title: "other workspace", UserID: user, WorkspaceID: uuid.New(), Active: true},
		{Title: "other user", UserID: uuid.New(), WorkspaceID: workspace, Active: true},
		{Title: "not a root", UserID: user, WorkspaceID: workspace, Active: true, ParentTemplateID: &parent},
	}
	for _, tmpl := range fixtures {
		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	active, err := store.ListActive(ctx, user, workspace)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(active) != 1 || active[0].Title != "mine" {
		t.Errorf("Expected only 'mine', got %d templates", len(active))
	}

	if err := store.DeactivateTemplate(ctx, fixtures[0].ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	active, _ = store.ListActive(ctx, user, workspace)
	if len(active) != 0 {
		t.Errorf("Expected no active templates after deactivation, got %d", len(active))
	}
}

func TestStore_UpdateTemplateLocksRuleOnceMaterialized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	tmpl := &models.RecurringTaskTemplate{
		UserID: uuid.New(), WorkspaceID: uuid.New(), Title: "Run", Active: true,
		Rule: models.RuleWeekly, StartDate: models.MustParseDate("2024-01-01"),
	}
	if err := store.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tmpl.Rule = models.RuleBiweekly
	if err := store.UpdateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("Expected rule change before materialization to succeed, got %v", err)
	}

	plan, err := store.GetOrCreate(ctx, models.PlanKey{UserID: tmpl.UserID, WorkspaceID: tmpl.WorkspaceID, Date: tmpl.StartDate}, models.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, _, err := store.Instances().GetOrCreate(ctx, tmpl.Instantiate(plan, nil)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tmpl.Rule = models.RuleMonthly
	if err := store.UpdateTemplate(ctx, tmpl); !errors.Is(err, database.ErrTemplateLocked) {
		t.Errorf("Expected ErrTemplateLocked, got %v", err)
	}

	tmpl.Rule = models.RuleBiweekly
	tmpl.Title = "Long run"
	if err := store.UpdateTemplate(ctx, tmpl); err != nil {
		t.Errorf("Expected title change to succeed, got %v", err)
	}
	stored, _ := store.GetTemplate(ctx, tmpl.ID)
	if stored.Title != "Long run" || stored.Rule != models.RuleBiweekly {
		t.Errorf("Expected updated title with unchanged rule, got %q/%s", stored.Title, stored.Rule)
	}
}
