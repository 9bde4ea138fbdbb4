// Package memstore is an in-process implementation of the template, plan and
// instance stores. It enforces the same uniqueness rules as the Postgres
// repositories and is safe for concurrent use.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benvon/dayplan/internal/database"
	"github.com/benvon/dayplan/internal/models"
	"github.com/google/uuid"
)

// Store holds templates, plans and instances in memory
type Store struct {
	mu              sync.Mutex
	templates       map[uuid.UUID]*models.RecurringTaskTemplate
	plans           map[uuid.UUID]*models.DailyPlan
	planByKey       map[string]uuid.UUID
	instances       map[uuid.UUID]*models.TaskInstance
	instancesByPlan map[uuid.UUID][]uuid.UUID
	now             func() time.Time

	// PlanFault and InstanceFault, when set, run before a row would be
	// inserted; a non-nil error aborts that insert. Set them before use.
	PlanFault     func(key models.PlanKey) error
	InstanceFault func(draft *models.TaskInstance) error
}

// New creates an empty store
func New() *Store {
	return &Store{
		templates:       make(map[uuid.UUID]*models.RecurringTaskTemplate),
		plans:           make(map[uuid.UUID]*models.DailyPlan),
		planByKey:       make(map[string]uuid.UUID),
		instances:       make(map[uuid.UUID]*models.TaskInstance),
		instancesByPlan: make(map[uuid.UUID][]uuid.UUID),
		now:             time.Now,
	}
}

// CreateTemplate stores a new template, assigning an ID when missing
func (s *Store) CreateTemplate(ctx context.Context, tmpl *models.RecurringTaskTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}
	if _, exists := s.templates[tmpl.ID]; exists {
		return fmt.Errorf("template %s already exists", tmpl.ID)
	}
	now := s.now()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	s.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

// GetTemplate returns a template by ID
func (s *Store) GetTemplate(ctx context.Context, id uuid.UUID) (*models.RecurringTaskTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, database.ErrNotFound)
	}
	return cloneTemplate(tmpl), nil
}

// UpdateTemplate replaces a stored template's mutable fields. The rule and
// start date can only change while no instance references the template.
func (s *Store) UpdateTemplate(ctx context.Context, tmpl *models.RecurringTaskTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.templates[tmpl.ID]
	if !ok {
		return fmt.Errorf("template %s: %w", tmpl.ID, database.ErrNotFound)
	}
	if existing.Rule != tmpl.Rule || !existing.StartDate.Equal(tmpl.StartDate) {
		for _, inst := range s.instances {
			if inst.ParentTemplateID != nil && *inst.ParentTemplateID == tmpl.ID {
				return fmt.Errorf("template %s: %w", tmpl.ID, database.ErrTemplateLocked)
			}
		}
	}
	tmpl.UserID, tmpl.WorkspaceID = existing.UserID, existing.WorkspaceID
	tmpl.ParentTemplateID = existing.ParentTemplateID
	tmpl.CreatedAt = existing.CreatedAt
	tmpl.UpdatedAt = s.now()
	s.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

// DeactivateTemplate marks a template inactive; its instances are kept
func (s *Store) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.templates[id]
	if !ok {
		return fmt.Errorf("template %s: %w", id, database.ErrNotFound)
	}
	tmpl.Active = false
	tmpl.UpdatedAt = s.now()
	return nil
}

// ListActive returns active root templates for (user, workspace), oldest first
func (s *Store) ListActive(ctx context.Context, userID, workspaceID uuid.UUID) ([]*models.RecurringTaskTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.RecurringTaskTemplate
	for _, tmpl := range s.templates {
		if tmpl.UserID != userID || tmpl.WorkspaceID != workspaceID {
			continue
		}
		if !tmpl.Active || tmpl.ParentTemplateID != nil {
			continue
		}
		out = append(out, cloneTemplate(tmpl))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// CountInstances returns how many instances were materialized from a template
func (s *Store) CountInstances(ctx context.Context, templateID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, inst := range s.instances {
		if inst.ParentTemplateID != nil && *inst.ParentTemplateID == templateID {
			count++
		}
	}
	return count, nil
}

// GetOrCreate returns the plan for key, creating it with visibility if absent
func (s *Store) GetOrCreate(ctx context.Context, key models.PlanKey, visibility models.Visibility) (*models.DailyPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.planByKey[key.String()]; ok {
		return clonePlan(s.plans[id], nil), nil
	}
	if s.PlanFault != nil {
		if err := s.PlanFault(key); err != nil {
			return nil, err
		}
	}

	now := s.now()
	plan := &models.DailyPlan{
		ID:          uuid.New(),
		UserID:      key.UserID,
		WorkspaceID: key.WorkspaceID,
		Date:        key.Date,
		Visibility:  visibility,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.plans[plan.ID] = plan
	s.planByKey[key.String()] = plan.ID
	return clonePlan(plan, nil), nil
}

// ListRange returns stored plans in [start, end] with their tasks, by date
func (s *Store) ListRange(ctx context.Context, userID, workspaceID uuid.UUID, start, end models.Date) ([]*models.DailyPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.DailyPlan
	for _, plan := range s.plans {
		if plan.UserID != userID || plan.WorkspaceID != workspaceID {
			continue
		}
		if plan.Date.Before(start) || plan.Date.After(end) {
			continue
		}
		tasks := make([]*models.TaskInstance, 0, len(s.instancesByPlan[plan.ID]))
		for _, id := range s.instancesByPlan[plan.ID] {
			tasks = append(tasks, cloneInstance(s.instances[id]))
		}
		models.SortTasks(tasks)
		out = append(out, clonePlan(plan, tasks))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// AddTask inserts a task that did not come from a template, e.g. one carried
// over by rollover or typed in by the user. Position is assigned as for
// materialized instances.
func (s *Store) AddTask(ctx context.Context, task *models.TaskInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[task.PlanID]; !ok {
		return fmt.Errorf("plan %s: %w", task.PlanID, database.ErrNotFound)
	}
	inst := cloneInstance(task)
	s.insertLocked(inst)
	task.ID, task.Position = inst.ID, inst.Position
	task.CreatedAt, task.UpdatedAt = inst.CreatedAt, inst.UpdatedAt
	return nil
}

// getOrCreateInstance backs InstanceView; Store's own GetOrCreate is the plan store.
func (s *Store) getOrCreateInstance(ctx context.Context, draft *models.TaskInstance) (*models.TaskInstance, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if draft.ParentTemplateID == nil {
		return nil, false, fmt.Errorf("instance draft has no parent template")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[draft.PlanID]; !ok {
		return nil, false, fmt.Errorf("plan %s: %w", draft.PlanID, database.ErrNotFound)
	}
	for _, id := range s.instancesByPlan[draft.PlanID] {
		inst := s.instances[id]
		if inst.ParentTemplateID != nil && *inst.ParentTemplateID == *draft.ParentTemplateID {
			return cloneInstance(inst), false, nil
		}
	}
	if s.InstanceFault != nil {
		if err := s.InstanceFault(draft); err != nil {
			return nil, false, err
		}
	}

	inst := cloneInstance(draft)
	s.insertLocked(inst)
	return cloneInstance(inst), true, nil
}

// insertLocked assigns ID, position and timestamps, then stores task. Caller holds mu.
func (s *Store) insertLocked(task *models.TaskInstance) {
	maxPosition := 0
	for _, id := range s.instancesByPlan[task.PlanID] {
		if p := s.instances[id].Position; p > maxPosition {
			maxPosition = p
		}
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := s.now()
	task.Position = maxPosition + 1
	task.CreatedAt = now
	task.UpdatedAt = now
	s.instances[task.ID] = task
	s.instancesByPlan[task.PlanID] = append(s.instancesByPlan[task.PlanID], task.ID)
}

// Instances returns the store's InstanceStore view
func (s *Store) Instances() *InstanceView {
	return &InstanceView{store: s}
}

// InstanceView adapts Store to the instance store contract
type InstanceView struct {
	store *Store
}

// GetOrCreate returns the instance for (draft.PlanID, draft.ParentTemplateID), inserting draft if absent
func (v *InstanceView) GetOrCreate(ctx context.Context, draft *models.TaskInstance) (*models.TaskInstance, bool, error) {
	return v.store.getOrCreateInstance(ctx, draft)
}

// Templates returns the store's template view
func (s *Store) Templates() *TemplateView {
	return &TemplateView{store: s}
}

// TemplateView adapts Store to the template repository contract used by handlers
type TemplateView struct {
	store *Store
}

func (v *TemplateView) Create(ctx context.Context, tmpl *models.RecurringTaskTemplate) error {
	return v.store.CreateTemplate(ctx, tmpl)
}

func (v *TemplateView) GetByID(ctx context.Context, id uuid.UUID) (*models.RecurringTaskTemplate, error) {
	return v.store.GetTemplate(ctx, id)
}

func (v *TemplateView) Update(ctx context.Context, tmpl *models.RecurringTaskTemplate) error {
	return v.store.UpdateTemplate(ctx, tmpl)
}

func (v *TemplateView) Deactivate(ctx context.Context, id uuid.UUID) error {
	return v.store.DeactivateTemplate(ctx, id)
}

func (v *TemplateView) ListActive(ctx context.Context, userID, workspaceID uuid.UUID) ([]*models.RecurringTaskTemplate, error) {
	return v.store.ListActive(ctx, userID, workspaceID)
}

func (v *TemplateView) CountInstances(ctx context.Context, templateID uuid.UUID) (int, error) {
	return v.store.CountInstances(ctx, templateID)
}

// Counts returns the number of stored plans and instances
func (s *Store) Counts() (plans, instances int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.plans), len(s.instances)
}

func cloneTemplate(t *models.RecurringTaskTemplate) *models.RecurringTaskTemplate {
	c := *t
	if t.EstimatedMinutes != nil {
		v := *t.EstimatedMinutes
		c.EstimatedMinutes = &v
	}
	if t.TimeOfDay != nil {
		v := *t.TimeOfDay
		c.TimeOfDay = &v
	}
	if t.ParentTemplateID != nil {
		v := *t.ParentTemplateID
		c.ParentTemplateID = &v
	}
	return &c
}

func clonePlan(p *models.DailyPlan, tasks []*models.TaskInstance) *models.DailyPlan {
	c := *p
	if tasks == nil {
		tasks = []*models.TaskInstance{}
	}
	c.Tasks = tasks
	return &c
}

func cloneInstance(t *models.TaskInstance) *models.TaskInstance {
	c := *t
	if t.ParentTemplateID != nil {
		v := *t.ParentTemplateID
		c.ParentTemplateID = &v
	}
	if t.EstimatedMinutes != nil {
		v := *t.EstimatedMinutes
		c.EstimatedMinutes = &v
	}
	if t.ActualMinutes != nil {
		v := *t.ActualMinutes
		c.ActualMinutes = &v
	}
	if t.StartTime != nil {
		v := *t.StartTime
		c.StartTime = &v
	}
	if t.EndTime != nil {
		v := *t.EndTime
		c.EndTime = &v
	}
	if c.Subtasks == nil {
		c.Subtasks = []*models.Subtask{}
	}
	if c.Attachments == nil {
		c.Attachments = []*models.Attachment{}
	}
	return &c
}
