package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drorchestrator/backend-go/internal/arbiter"
	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/plan"
	"github.com/drorchestrator/backend-go/internal/restore"
	"github.com/drorchestrator/backend-go/internal/retry"
	"github.com/drorchestrator/backend-go/internal/safety"
)

var fastPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

var smallReq = domain.ResourceRequirements{CPUMillis: 100, MemoryMB: 64, DiskMB: 10, NetworkMbps: 10}

var bigPool = domain.ResourceRequirements{CPUMillis: 100000, MemoryMB: 100000, DiskMB: 100000, NetworkMbps: 100000}

// fakeRestorer fails the first failures[id] attempts of a component and
// records every call
type fakeRestorer struct {
	mu          sync.Mutex
	failures    map[string]int
	calls       map[string]int
	order       []string
	delay       time.Duration
	gate        chan struct{}
	dataLoss    map[string]time.Duration
	rolledBack  []string
	rollbackErr map[string]error
	active      atomic.Int32
	peak        atomic.Int32
}

func newFakeRestorer() *fakeRestorer {
	return &fakeRestorer{
		failures:    map[string]int{},
		calls:       map[string]int{},
		dataLoss:    map[string]time.Duration{},
		rollbackErr: map[string]error{},
	}
}

func (f *fakeRestorer) Restore(ctx context.Context, comp domain.RecoveryComponent) (*restore.Outcome, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[comp.ID]++
	call := f.calls[comp.ID]
	f.order = append(f.order, comp.ID)
	fail := call <= f.failures[comp.ID]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("restore %s failed on call %d", comp.ID, call)
	}

	out := &restore.Outcome{
		Success:             true,
		BytesTransferred:    comp.SizeBytes,
		RollbackDescription: "undo " + comp.ID,
		Rollback: func() (map[string]any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.rolledBack = append(f.rolledBack, comp.ID)
			return nil, f.rollbackErr[comp.ID]
		},
	}
	if d, ok := f.dataLoss[comp.ID]; ok {
		out.DataLossWindow = &d
	}
	return out, nil
}

func (f *fakeRestorer) EstimateResources(domain.RecoveryComponent) domain.ResourceRequirements {
	return smallReq
}

func (f *fakeRestorer) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeRestorer) rollbacks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rolledBack...)
}

func (f *fakeRestorer) restoreOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func registryWith(r restore.Restorable) *restore.Registry {
	reg := restore.NewRegistry()
	for _, t := range []domain.ComponentType{
		domain.ComponentDatabase,
		domain.ComponentApplication,
		domain.ComponentConfiguration,
		domain.ComponentSecrets,
		domain.ComponentStorage,
		domain.ComponentCache,
	} {
		reg.Register(t, r)
	}
	return reg
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingEvents) Publish(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (r *recordingAlerts) Alert(_ context.Context, a domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerts) kinds() []domain.AlertKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AlertKind
	for _, a := range r.alerts {
		out = append(out, a.Kind)
	}
	return out
}

type recordingStore struct {
	mu    sync.Mutex
	saved map[string]*domain.RecoveryExecution
	err   error
}

func (s *recordingStore) SaveExecution(_ context.Context, e *domain.RecoveryExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = map[string]*domain.RecoveryExecution{}
	}
	s.saved[e.ID] = e
	return s.err
}

type harness struct {
	orch      *Orchestrator
	plans     *plan.Registry
	restorer  *fakeRestorer
	arbiter   *arbiter.Arbiter
	events    *recordingEvents
	alerts    *recordingAlerts
	store     *recordingStore
	esm       *safety.EmergencyStop
	rollbacks *safety.RollbackManager
	snapshots *safety.SnapshotManager
}

func newHarness(t *testing.T, pool domain.ResourceRequirements, opts Options) *harness {
	t.Helper()
	h := &harness{
		plans:     plan.NewRegistry(),
		restorer:  newFakeRestorer(),
		arbiter:   arbiter.New(pool),
		events:    &recordingEvents{},
		alerts:    &recordingAlerts{},
		store:     &recordingStore{},
		esm:       safety.NewEmergencyStop(),
		rollbacks: safety.NewRollbackManager(),
		snapshots: safety.NewSnapshotManager(nil),
	}
	restorers := registryWith(h.restorer)
	h.orch = NewOrchestrator(Deps{
		Plans:         h.plans,
		Restorers:     restorers,
		Arbiter:       h.arbiter,
		Executor:      NewComponentExecutor(restorers, h.arbiter, nil, nil, fastPolicy, time.Second),
		EmergencyStop: h.esm,
		Rollbacks:     h.rollbacks,
		Snapshots:     h.snapshots,
		Events:        h.events,
		Alerts:        h.alerts,
		Store:         h.store,
	}, opts)
	return h
}

func (h *harness) register(t *testing.T, p *domain.RecoveryPlan) {
	t.Helper()
	_, err := h.plans.Register(p)
	require.NoError(t, err)
}

func (h *harness) runToEnd(t *testing.T, planID string, so SubmitOptions) *domain.RecoveryExecution {
	t.Helper()
	id, err := h.orch.Submit(context.Background(), planID, so)
	require.NoError(t, err)
	return h.wait(t, id)
}

func (h *harness) wait(t *testing.T, id string) *domain.RecoveryExecution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exec, err := h.orch.Wait(ctx, id)
	require.NoError(t, err)
	require.True(t, exec.Status.Terminal(), "status %s", exec.Status)
	return exec
}

func component(id string, typ domain.ComponentType, crit domain.Criticality, deps ...string) domain.RecoveryComponent {
	return domain.RecoveryComponent{
		ID:                           id,
		Type:                         typ,
		Criticality:                  crit,
		BackupLocation:               "backup://" + id,
		EstimatedRecoveryTimeSeconds: 1,
		Dependencies:                 deps,
	}
}

func errorMessages(exec *domain.RecoveryExecution) string {
	msgs := make([]string, 0, len(exec.Errors))
	for _, e := range exec.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "\n")
}
