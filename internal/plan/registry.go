package plan

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/graph"
)

type entry struct {
	plan   *domain.RecoveryPlan
	active int
}

// Registry holds validated plans. Stored plans are never mutated; callers
// always receive copies.
type Registry struct {
	mu    sync.RWMutex
	plans map[string]*entry
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{plans: make(map[string]*entry)}
}

// Validate builds and schedules p, returning the schedule
func Validate(p *domain.RecoveryPlan) (*graph.Schedule, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil plan", domain.ErrInvalidPlan)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: plan id is required", domain.ErrInvalidPlan)
	}
	if p.TargetRTOSeconds < 0 || p.TargetRPOSeconds < 0 {
		return nil, fmt.Errorf("%w: negative RTO/RPO target", domain.ErrInvalidPlan)
	}
	g, err := graph.Build(p)
	if err != nil {
		return nil, err
	}
	return graph.PlanSchedule(g)
}

// Register validates p and stores a copy. Re-registering an id replaces the
// stored plan unless an execution of it is in progress.
func (r *Registry) Register(p *domain.RecoveryPlan) (*domain.RecoveryPlan, error) {
	sched, err := Validate(p)
	if err != nil {
		return nil, err
	}

	stored := p.Clone()
	if stored.EstimatedDurationSeconds == 0 {
		stored.EstimatedDurationSeconds = int(sched.EstimatedDuration.Seconds())
	}
	if stored.Name == "" {
		stored.Name = stored.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.plans[stored.ID]; ok && e.active > 0 {
		return nil, fmt.Errorf("%w: %s has %d active executions", domain.ErrPlanInUse, stored.ID, e.active)
	}
	r.plans[stored.ID] = &entry{plan: stored}
	log.Printf("plan: registered %s (%d components, %d groups)", stored.ID, len(stored.Components), len(sched.Groups))
	return stored.Clone(), nil
}

// Get returns a copy of the plan
func (r *Registry) Get(id string) (*domain.RecoveryPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, id)
	}
	return e.plan.Clone(), nil
}

// Acquire returns a copy of the plan and marks it in use until release is
// called. release is safe to call more than once.
func (r *Registry) Acquire(id string) (*domain.RecoveryPlan, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.plans[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, id)
	}
	e.active++

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			e.active--
			r.mu.Unlock()
		})
	}
	return e.plan.Clone(), release, nil
}

// ActiveRuns is the number of executions holding the plan
func (r *Registry) ActiveRuns(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.plans[id]; ok {
		return e.active
	}
	return 0
}

// List returns copies of all plans ordered by id
func (r *Registry) List() []*domain.RecoveryPlan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.RecoveryPlan, 0, len(r.plans))
	for _, e := range r.plans {
		out = append(out, e.plan.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove deletes a plan that is not in use
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.plans[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPlanNotFound, id)
	}
	if e.active > 0 {
		return fmt.Errorf("%w: %s has %d active executions", domain.ErrPlanInUse, id, e.active)
	}
	delete(r.plans, id)
	return nil
}
