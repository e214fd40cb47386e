package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/drorchestrator/backend-go/internal/engine"
)

// Drill is a recurring dry-run of a plan
type Drill struct {
	PlanID string `json:"plan_id"`
	Spec   string `json:"spec"`
}

// Submitter starts executions
type Submitter interface {
	Submit(ctx context.Context, planID string, so engine.SubmitOptions) (string, error)
}

// ParseDrills reads "plan=cron;plan=cron" as used by DRILL_SCHEDULES.
// Standard five-field specs and descriptors such as @daily are accepted.
func ParseDrills(s string) ([]Drill, error) {
	var drills []Drill
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		planID, spec, ok := strings.Cut(entry, "=")
		planID, spec = strings.TrimSpace(planID), strings.TrimSpace(spec)
		if !ok || planID == "" || spec == "" {
			return nil, fmt.Errorf("drill %q: want plan_id=cron", entry)
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("could not parse cron %s for plan %s: %w", spec, planID, err)
		}
		drills = append(drills, Drill{PlanID: planID, Spec: spec})
	}
	return drills, nil
}

// Scheduler submits dry-run drills on their cron schedules
type Scheduler struct {
	cron   *cron.Cron
	submit Submitter

	mu      sync.Mutex
	entries map[string]cron.EntryID
	specs   map[string]string
}

// New creates a stopped Scheduler
func New(submit Submitter) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		submit:  submit,
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}
}

// Add schedules d, replacing any drill already scheduled for the plan
func (s *Scheduler) Add(d Drill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(d.Spec, func() { s.runDrill(d.PlanID) })
	if err != nil {
		return fmt.Errorf("could not parse cron %s for plan %s: %w", d.Spec, d.PlanID, err)
	}
	if old, ok := s.entries[d.PlanID]; ok {
		s.cron.Remove(old)
	}
	s.entries[d.PlanID] = id
	s.specs[d.PlanID] = d.Spec
	log.Printf("scheduler: drill for %s scheduled (%s)", d.PlanID, d.Spec)
	return nil
}

// Remove unschedules the plan's drill
func (s *Scheduler) Remove(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[planID]; ok {
		s.cron.Remove(id)
		delete(s.entries, planID)
		delete(s.specs, planID)
	}
}

// Drills lists scheduled drills by plan id
func (s *Scheduler) Drills() []Drill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Drill, 0, len(s.specs))
	for planID, spec := range s.specs {
		out = append(out, Drill{PlanID: planID, Spec: spec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanID < out[j].PlanID })
	return out
}

// Next returns when the plan's drill fires next after from
func (s *Scheduler) Next(planID string, from time.Time) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[planID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Schedule.Next(from), true
}

// Start runs the cron loop in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling; the returned context is done once running drills
// have been submitted
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runDrill(planID string) {
	id, err := s.submit.Submit(context.Background(), planID, engine.SubmitOptions{
		DryRun:      true,
		TriggeredBy: "drill",
	})
	if err != nil {
		log.Printf("scheduler: drill for %s not started: %v", planID, err)
		return
	}
	log.Printf("scheduler: drill for %s started as %s", planID, id)
}
