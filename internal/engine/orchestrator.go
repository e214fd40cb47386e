package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/drorchestrator/backend-go/internal/arbiter"
	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/graph"
	"github.com/drorchestrator/backend-go/internal/observability"
	"github.com/drorchestrator/backend-go/internal/plan"
	"github.com/drorchestrator/backend-go/internal/probe"
	"github.com/drorchestrator/backend-go/internal/restore"
	"github.com/drorchestrator/backend-go/internal/safety"
)

const persistTimeout = 10 * time.Second

// EventPublisher receives execution events
type EventPublisher interface {
	Publish(ev domain.Event)
}

// AlertSink receives compliance and failure alerts
type AlertSink interface {
	Alert(ctx context.Context, a domain.Alert) error
}

// ExecutionSink persists finished executions
type ExecutionSink interface {
	SaveExecution(ctx context.Context, exec *domain.RecoveryExecution) error
}

// SubmitOptions override plan defaults for one execution
type SubmitOptions struct {
	// TargetRTOSeconds replaces the plan's RTO when positive
	TargetRTOSeconds int    `json:"target_rto_seconds,omitempty"`
	DryRun           bool   `json:"dry_run"`
	AutoRollback     *bool  `json:"auto_rollback,omitempty"`
	TriggeredBy      string `json:"triggered_by,omitempty"`
}

// Options tune the orchestrator
type Options struct {
	MaxParallel  int
	HistorySize  int
	AutoRollback bool
}

// Deps are the orchestrator's collaborators. Plans, Restorers, Arbiter and
// Executor are required; the rest may be nil.
type Deps struct {
	Plans         *plan.Registry
	Restorers     *restore.Registry
	Arbiter       *arbiter.Arbiter
	Executor      *ComponentExecutor
	Probes        *probe.Builder
	EmergencyStop *safety.EmergencyStop
	Rollbacks     *safety.RollbackManager
	Snapshots     *safety.SnapshotManager
	Events        EventPublisher
	Alerts        AlertSink
	Store         ExecutionSink
	Metrics       *observability.Metrics
}

// Orchestrator drives recovery executions through their phases
type Orchestrator struct {
	plans     *plan.Registry
	restorers *restore.Registry
	arbiter   *arbiter.Arbiter
	executor  *ComponentExecutor
	probes    *probe.Builder
	esm       *safety.EmergencyStop
	rollbacks *safety.RollbackManager
	snapshots *safety.SnapshotManager
	events    EventPublisher
	alerts    AlertSink
	store     ExecutionSink
	metrics   *observability.Metrics

	execs *executionRegistry
	opts  Options
	now   func() time.Time
}

// run is the mutable state of one active execution
type run struct {
	id           string
	plan         *domain.RecoveryPlan
	graph        *graph.Graph
	schedule     *graph.Schedule
	release      func()
	dryRun       bool
	autoRollback bool
	targetRTO    time.Duration
	targetRPO    time.Duration

	mu              sync.Mutex
	exec            *domain.RecoveryExecution
	rtoWarned       bool
	criticalFailure error

	cancelled atomic.Bool
	paused    atomic.Bool
	// stop is cancelled with the run and bounds resource waits only
	stop     context.Context
	stopWait context.CancelFunc
	wake     chan struct{}
	done     chan struct{}
}

// cancel flags the run and aborts its resource waits. It reports whether
// this call made the change.
func (r *run) cancel() bool {
	first := r.cancelled.CompareAndSwap(false, true)
	r.stopWait()
	r.signal()
	return first
}

func (r *run) update(fn func(e *domain.RecoveryExecution)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.exec)
}

func (r *run) snapshot() *domain.RecoveryExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exec.Clone()
}

func (r *run) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// NewOrchestrator wires an orchestrator and subscribes it to the emergency stop
func NewOrchestrator(d Deps, opts Options) *Orchestrator {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	o := &Orchestrator{
		plans:     d.Plans,
		restorers: d.Restorers,
		arbiter:   d.Arbiter,
		executor:  d.Executor,
		probes:    d.Probes,
		esm:       d.EmergencyStop,
		rollbacks: d.Rollbacks,
		snapshots: d.Snapshots,
		events:    d.Events,
		alerts:    d.Alerts,
		store:     d.Store,
		metrics:   d.Metrics,
		execs:     newExecutionRegistry(opts.HistorySize),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if o.probes == nil {
		o.probes = &probe.Builder{}
	}
	if o.esm == nil {
		o.esm = safety.NewEmergencyStop()
	}
	if o.rollbacks == nil {
		o.rollbacks = safety.NewRollbackManager()
	}
	if o.snapshots == nil {
		o.snapshots = safety.NewSnapshotManager(nil)
	}
	o.esm.OnTrigger(o.cancelAll)
	return o
}

func newExecutionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("recovery_%d_%s", now.UnixMilli(), suffix)
}

// Submit validates the plan and starts an execution in the background. Plan
// structure errors (cycles, unknown components) are returned before any
// execution record exists.
func (o *Orchestrator) Submit(ctx context.Context, planID string, so SubmitOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := o.esm.Check(); err != nil {
		return "", err
	}

	p, release, err := o.plans.Acquire(planID)
	if err != nil {
		return "", err
	}
	g, err := graph.Build(p)
	if err != nil {
		release()
		return "", err
	}
	sched, err := graph.PlanSchedule(g)
	if err != nil {
		release()
		return "", err
	}

	targetRTO := p.TargetRTO()
	if so.TargetRTOSeconds > 0 {
		targetRTO = time.Duration(so.TargetRTOSeconds) * time.Second
	}
	autoRollback := p.AutoRollback || o.opts.AutoRollback
	if so.AutoRollback != nil {
		autoRollback = *so.AutoRollback
	}

	now := o.now()
	id := newExecutionID(now)
	stop, stopWait := context.WithCancel(context.Background())
	rn := &run{
		id:           id,
		plan:         p,
		graph:        g,
		schedule:     sched,
		release:      release,
		dryRun:       so.DryRun,
		autoRollback: autoRollback,
		targetRTO:    targetRTO,
		targetRPO:    p.TargetRPO(),
		stop:         stop,
		stopWait:     stopWait,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		exec: &domain.RecoveryExecution{
			ID:               id,
			PlanID:           p.ID,
			PlanName:         p.Name,
			Status:           domain.ExecutionPlanned,
			DryRun:           so.DryRun,
			TriggeredBy:      so.TriggeredBy,
			TargetRTOSeconds: int(targetRTO.Seconds()),
			TargetRPOSeconds: p.TargetRPOSeconds,
			StartTime:        now,
			Groups:           sched.Groups,
			ComponentStatus:  make(map[string]*domain.ComponentRecoveryStatus, len(p.Components)),
			Progress:         domain.ExecutionProgress{TotalComponents: len(p.Components)},
			Metrics:          domain.ExecutionMetrics{ComponentRecoveryTimes: make(map[string]float64)},
			Errors:           []domain.RecoveryError{},
			Warnings:         append([]string{}, sched.Warnings...),
		},
	}
	o.execs.add(rn)
	o.metrics.RecordRecoveryStart()
	log.Printf("recovery: submitted %s for plan %s (%d components, %d groups, dry_run=%v)",
		id, p.ID, len(p.Components), len(sched.Groups), so.DryRun)

	go o.execute(rn)
	return id, nil
}

type phaseFunc func(ctx context.Context, rn *run) error

func (o *Orchestrator) execute(rn *run) {
	ctx := context.Background()
	defer close(rn.done)
	defer rn.release()
	defer rn.stopWait()

	// a Pause that arrived while the run was still planned holds it here
	status := domain.ExecutionRunning
	rn.update(func(e *domain.RecoveryExecution) {
		if rn.paused.Load() {
			status = domain.ExecutionPaused
		}
		e.Status = status
	})
	o.publish(rn, domain.Event{Type: domain.EventRecoveryStarted, Status: string(status)})

	phases := []struct {
		phase domain.Phase
		fn    phaseFunc
	}{
		{domain.PhasePreparation, o.prepare},
		{domain.PhaseValidation, o.validate},
		{domain.PhaseRecovery, o.recover},
		{domain.PhaseVerification, o.verify},
	}
	for _, ph := range phases {
		if rn.cancelled.Load() {
			o.finishCancelled(ctx, rn)
			return
		}
		o.enterPhase(rn, ph.phase)
		if err := ph.fn(ctx, rn); err != nil {
			if errors.Is(err, domain.ErrCancelled) {
				o.finishCancelled(ctx, rn)
				return
			}
			o.fail(ctx, rn, ph.phase, err)
			return
		}
	}

	o.enterPhase(rn, domain.PhaseFinalization)
	o.snapshots.Delete(rn.id)
	o.rollbacks.Discard(rn.id)
	o.close(ctx, rn, domain.ExecutionCompleted)
}

func (o *Orchestrator) prepare(ctx context.Context, rn *run) error {
	if err := o.esm.Check(); err != nil {
		return err
	}

	var short []string
	for _, comp := range rn.plan.Components {
		if req := o.restorers.Estimate(comp); !o.arbiter.CanEverFit(req) {
			short = append(short, fmt.Sprintf("%s needs %s", comp.ID, req))
		}
	}
	if len(short) > 0 {
		return fmt.Errorf("%w: %s; pool is %s", domain.ErrInsufficientResources, strings.Join(short, ", "), o.arbiter.Capacity())
	}

	capacity := o.arbiter.Capacity()
	for i, req := range graph.GroupRequirements(rn.graph, rn.schedule, o.restorers.Estimate) {
		if !req.FitsWithin(capacity) {
			o.warn(rn, fmt.Sprintf("group %d requests %s, more than the pool %s; members will queue", i, req, capacity))
		}
	}

	for _, comp := range rn.plan.Components {
		if comp.IsCritical() {
			o.prestage(ctx, rn, comp)
		}
	}

	rn.update(func(e *domain.RecoveryExecution) {
		for _, comp := range rn.plan.Components {
			e.ComponentStatus[comp.ID] = &domain.ComponentRecoveryStatus{
				ComponentID: comp.ID,
				Status:      domain.ComponentPending,
				TotalBytes:  comp.SizeBytes,
			}
		}
	})
	return nil
}

func (o *Orchestrator) prestage(ctx context.Context, rn *run, comp domain.RecoveryComponent) {
	state := map[string]any{}
	if restorer, err := o.restorers.Lookup(comp.Type); err == nil {
		if ps, ok := restorer.(restore.Prestager); ok {
			s, err := ps.Prestage(ctx, comp)
			if err != nil {
				o.warn(rn, fmt.Sprintf("pre-stage of %s failed: %v", comp.ID, err))
			} else if s != nil {
				state = s
			}
		}
	}
	o.snapshots.Capture(ctx, rn.id, comp, state)
}

// backupRequired lists the types whose restore always reads a backup
var backupRequired = map[domain.ComponentType]bool{
	domain.ComponentDatabase: true,
	domain.ComponentStorage:  true,
	domain.ComponentCache:    true,
}

func (o *Orchestrator) validate(ctx context.Context, rn *run) error {
	for _, comp := range rn.plan.Components {
		if _, err := o.restorers.Lookup(comp.Type); err != nil {
			return fmt.Errorf("%w: component %s: %w", domain.ErrInvalidPlan, comp.ID, err)
		}
		if !rn.dryRun && backupRequired[comp.Type] && comp.BackupLocation == "" {
			return fmt.Errorf("%w: component %s has no backup location", domain.ErrInvalidPlan, comp.ID)
		}
	}
	return nil
}

func (o *Orchestrator) recover(ctx context.Context, rn *run) error {
	sem := semaphore.NewWeighted(int64(o.opts.MaxParallel))

	for _, group := range rn.schedule.Groups {
		if err := o.checkpoint(ctx, rn); err != nil {
			return err
		}

		var runnable []domain.RecoveryComponent
		for _, id := range group.ComponentIDs {
			node, _ := rn.graph.Node(id)
			if reason := o.blockedBy(rn, node); reason != "" {
				o.skip(rn, node.Component, reason)
				continue
			}
			runnable = append(runnable, node.Component)
		}
		rn.update(func(e *domain.RecoveryExecution) {
			e.Progress.CurrentParallelism = min(len(runnable), o.opts.MaxParallel)
		})

		var eg errgroup.Group
		for _, comp := range runnable {
			eg.Go(func() error {
				if err := sem.Acquire(rn.stop, 1); err != nil {
					if rn.cancelled.Load() {
						o.skip(rn, comp, "cancelled before start")
						return nil
					}
					return err
				}
				defer sem.Release(1)
				if rn.cancelled.Load() {
					o.skip(rn, comp, "cancelled before start")
					return nil
				}

				res := o.executor.Run(ctx, comp, RunOptions{
					ExecutionID: rn.id,
					DryRun:      rn.dryRun,
					Proceed:     func() bool { return !rn.cancelled.Load() },
					Stop:        rn.stop,
					OnStatus:    func(u StatusUpdate) { o.componentStatus(rn, u) },
					OnRestored: func(c domain.RecoveryComponent, out *restore.Outcome) {
						o.rollbacks.Push(rn.id, c.ID, out.Rollback, out.RollbackDescription)
					},
				})
				o.recordResult(rn, comp, res)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		rn.update(func(e *domain.RecoveryExecution) { e.Progress.CurrentParallelism = 0 })
		o.trackRTO(rn)

		if rn.cancelled.Load() {
			return domain.ErrCancelled
		}
		rn.mu.Lock()
		failure := rn.criticalFailure
		rn.mu.Unlock()
		if failure != nil {
			return failure
		}
	}
	return nil
}

// checkpoint blocks while the run is paused and reports cancellation
func (o *Orchestrator) checkpoint(ctx context.Context, rn *run) error {
	for {
		if rn.cancelled.Load() {
			return domain.ErrCancelled
		}
		if !rn.paused.Load() {
			return nil
		}
		select {
		case <-rn.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// blockedBy returns why node cannot run, or "" when it can
func (o *Orchestrator) blockedBy(rn *run, node *graph.Node) string {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	for _, edge := range node.DependsOn {
		st, ok := rn.exec.ComponentStatus[edge.DependsOn]
		if !ok || st.Status == domain.ComponentCompleted {
			continue
		}
		if edge.RequiresSuccess() {
			return fmt.Sprintf("dependency %s is %s", edge.DependsOn, st.Status)
		}
		if st.Status == domain.ComponentFailed || st.Status == domain.ComponentSkipped {
			rn.exec.Warnings = append(rn.exec.Warnings,
				fmt.Sprintf("%s: %s dependency %s is %s, continuing", node.Component.ID, edge.Type, edge.DependsOn, st.Status))
		}
	}
	return ""
}

func (o *Orchestrator) skip(rn *run, comp domain.RecoveryComponent, reason string) {
	now := o.now()
	rn.update(func(e *domain.RecoveryExecution) {
		st := e.ComponentStatus[comp.ID]
		st.Status = domain.ComponentSkipped
		st.EndTime = &now
		st.Warnings = append(st.Warnings, "skipped: "+reason)
		e.Progress.SkippedComponents++
		e.Progress.Recompute()
		e.Warnings = append(e.Warnings, fmt.Sprintf("%s skipped: %s", comp.ID, reason))
	})
	log.Printf("recovery: %s skipped %s: %s", rn.id, comp.ID, reason)
	o.publish(rn, domain.Event{
		Type:        domain.EventComponentStatusChanged,
		ComponentID: comp.ID,
		Status:      string(domain.ComponentSkipped),
		Message:     reason,
	})
}

func (o *Orchestrator) componentStatus(rn *run, u StatusUpdate) {
	now := o.now()
	rn.update(func(e *domain.RecoveryExecution) {
		st, ok := e.ComponentStatus[u.ComponentID]
		if !ok {
			return
		}
		st.Status = u.Status
		switch u.Status {
		case domain.ComponentRunning:
			if st.StartTime == nil {
				st.StartTime = &now
			}
		case domain.ComponentRetrying:
			st.RetryCount = u.Attempt - 1
		}
	})

	ev := domain.Event{Type: domain.EventComponentStatusChanged, ComponentID: u.ComponentID, Status: string(u.Status)}
	if u.Err != nil {
		ev.Message = u.Err.Error()
	}
	o.publish(rn, ev)
}

func (o *Orchestrator) recordResult(rn *run, comp domain.RecoveryComponent, res *ComponentResult) {
	if res.Status == domain.ComponentSkipped {
		o.skip(rn, comp, res.Err.Error())
		return
	}
	critical := comp.IsCritical()
	rn.update(func(e *domain.RecoveryExecution) {
		st := e.ComponentStatus[comp.ID]
		start, end := res.StartTime, res.EndTime
		st.Status = res.Status
		if st.StartTime == nil {
			st.StartTime = &start
		}
		st.EndTime = &end
		st.RetryCount = res.RetryCount()
		st.Errors = append(st.Errors, res.Errors...)
		st.Warnings = append(st.Warnings, res.Warnings...)
		e.Metrics.ComponentRecoveryTimes[comp.ID] = res.Duration().Seconds()

		if res.Status == domain.ComponentCompleted {
			st.Progress = 100
			if out := res.Outcome; out != nil {
				st.BytesTransferred = out.BytesTransferred
				if out.DataLossWindow != nil {
					secs := out.DataLossWindow.Seconds()
					st.DataLossWindowSeconds = &secs
				}
			}
			for _, w := range res.Warnings {
				e.Warnings = append(e.Warnings, comp.ID+": "+w)
			}
			e.Progress.CompletedComponents++
		} else {
			severity := domain.SeverityError
			if critical {
				severity = domain.SeverityCritical
			}
			e.Errors = append(e.Errors, domain.RecoveryError{
				ComponentID: comp.ID,
				Phase:       domain.PhaseRecovery,
				Severity:    severity,
				Message:     res.Err.Error(),
				Recoverable: !critical,
				Timestamp:   end,
			})
			e.Progress.FailedComponents++
			if critical && rn.criticalFailure == nil {
				rn.criticalFailure = fmt.Errorf("critical component %s failed: %w", comp.ID, res.Err)
			}
		}
		e.Progress.Recompute()
	})

	log.Printf("recovery: %s component %s %s after %d attempt(s) in %v",
		rn.id, comp.ID, res.Status, res.Attempts, res.Duration().Round(time.Millisecond))
	o.metrics.RecordComponent(string(comp.Type), string(res.Status), res.Duration(), res.RetryCount())
	o.metrics.SetUtilization(o.arbiter.Utilization())
}

// trackRTO refreshes the remaining-time estimate and warns once on overrun.
// A plan without an RTO target never warns.
func (o *Orchestrator) trackRTO(rn *run) {
	now := o.now()
	var exceeded bool
	var elapsed time.Duration
	rn.update(func(e *domain.RecoveryExecution) {
		elapsed = now.Sub(e.StartTime)
		remaining := rn.targetRTO - elapsed
		if remaining < 0 {
			remaining = 0
		}
		e.Progress.EstimatedTimeRemainingSeconds = remaining.Seconds()
		if rn.targetRTO > 0 && elapsed > rn.targetRTO && !rn.rtoWarned {
			rn.rtoWarned = true
			exceeded = true
			e.Warnings = append(e.Warnings, fmt.Sprintf("elapsed %v exceeds target RTO %v", elapsed.Round(time.Second), rn.targetRTO))
		}
	})
	if exceeded {
		log.Printf("recovery: %s exceeded RTO %v", rn.id, rn.targetRTO)
		o.publish(rn, domain.Event{
			Type:    domain.EventRTOExceeded,
			Message: fmt.Sprintf("elapsed %v exceeds target RTO %v", elapsed.Round(time.Second), rn.targetRTO),
		})
	}
}

type verification struct {
	target   string
	cfg      domain.HealthCheckConfig
	critical bool
}

func (o *Orchestrator) verify(ctx context.Context, rn *run) error {
	if rn.dryRun {
		return nil
	}

	snap := rn.snapshot()
	var checks []verification
	for _, comp := range rn.plan.Components {
		if comp.HealthCheck == nil {
			continue
		}
		if st := snap.ComponentStatus[comp.ID]; st == nil || st.Status != domain.ComponentCompleted {
			continue
		}
		checks = append(checks, verification{comp.ID, *comp.HealthCheck, comp.IsCritical() || comp.HealthCheck.Critical})
	}
	for _, sc := range rn.plan.SystemChecks {
		checks = append(checks, verification{"system", sc, sc.Critical})
	}

	var (
		mu     sync.Mutex
		failed []string
		eg     errgroup.Group
	)
	eg.SetLimit(o.opts.MaxParallel)
	for _, c := range checks {
		eg.Go(func() error {
			passed, detail := o.checkOnce(ctx, c.target, c.cfg)
			if passed {
				return nil
			}
			msg := fmt.Sprintf("verification of %s failed: %s", c.target, detail)
			if c.critical {
				mu.Lock()
				failed = append(failed, msg)
				mu.Unlock()
				return nil
			}
			o.warn(rn, msg)
			return nil
		})
	}
	_ = eg.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("%w: %s", domain.ErrVerificationFailed, strings.Join(failed, "; "))
	}
	return nil
}

func (o *Orchestrator) checkOnce(ctx context.Context, target string, cfg domain.HealthCheckConfig) (bool, string) {
	p, err := o.probes.Build(target, cfg)
	if err != nil {
		return false, err.Error()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	res := probe.Run(ctx, p)
	return res.Healthy, res.Failure()
}

func (o *Orchestrator) fail(ctx context.Context, rn *run, phase domain.Phase, err error) {
	log.Printf("recovery: %s failed during %s: %v", rn.id, phase, err)
	rn.update(func(e *domain.RecoveryExecution) {
		e.Errors = append(e.Errors, domain.RecoveryError{
			Phase:       phase,
			Severity:    domain.SeverityCritical,
			Message:     err.Error(),
			Recoverable: false,
			Timestamp:   o.now(),
		})
	})

	if rn.autoRollback {
		o.rollback(ctx, rn)
	} else {
		o.rollbacks.Discard(rn.id)
	}
	o.snapshots.Delete(rn.id)
	o.alert(ctx, rn, domain.AlertRecoveryFailed, domain.SeverityCritical, err.Error())
	o.close(ctx, rn, domain.ExecutionFailed)
}

// rollback undoes restored components in reverse order. The record is kept
// even when every step fails or there was nothing to undo.
func (o *Orchestrator) rollback(ctx context.Context, rn *run) {
	o.enterPhase(rn, domain.PhaseRollback)
	started := o.now()
	steps := o.rollbacks.Rollback(rn.id)

	var failures int
	rn.update(func(e *domain.RecoveryExecution) {
		e.Rollback = &domain.RollbackRecord{Attempted: true, StartedAt: started, Steps: steps}
		for _, step := range steps {
			if step.Status != safety.StepFailed {
				continue
			}
			failures++
			e.Errors = append(e.Errors, domain.RecoveryError{
				ComponentID: step.ComponentID,
				Phase:       domain.PhaseRollback,
				Severity:    domain.SeverityError,
				Message:     fmt.Errorf("%w: %s: %s", domain.ErrRollbackFailed, step.Description, step.Error).Error(),
				Recoverable: false,
				Timestamp:   o.now(),
			})
		}
	})
	for _, step := range steps {
		o.metrics.RecordRollback(step.Status)
	}
	log.Printf("recovery: %s rolled back %d step(s), %d failed", rn.id, len(steps), failures)
	if failures > 0 {
		o.alert(ctx, rn, domain.AlertRollbackFailed, domain.SeverityCritical,
			fmt.Sprintf("%d of %d rollback steps failed", failures, len(steps)))
	}
}

func (o *Orchestrator) finishCancelled(ctx context.Context, rn *run) {
	log.Printf("recovery: %s cancelled", rn.id)
	o.rollbacks.Discard(rn.id)
	o.snapshots.Delete(rn.id)
	o.close(ctx, rn, domain.ExecutionCancelled)
}

// close stamps the terminal status and objective compliance, persists the
// record and moves it to history
func (o *Orchestrator) close(ctx context.Context, rn *run, status domain.ExecutionStatus) {
	end := o.now()
	var final *domain.RecoveryExecution
	rn.update(func(e *domain.RecoveryExecution) {
		e.Status = status
		e.EndTime = &end
		e.Progress.CurrentParallelism = 0
		e.Metrics.TotalDurationSeconds = end.Sub(e.StartTime).Seconds()
		e.Metrics.ResourceUtilization = o.arbiter.Utilization()
		e.Metrics.RTOCompliance = rn.targetRTO <= 0 || domain.RTOCompliant(e.StartTime, end, rn.targetRTO)
		e.Metrics.MaxDataLossSeconds = maxDataLoss(e)
		e.Metrics.RPOCompliance = e.Metrics.MaxDataLossSeconds == nil ||
			*e.Metrics.MaxDataLossSeconds <= rn.targetRPO.Seconds()
		final = e.Clone()
	})

	if status == domain.ExecutionCompleted {
		if !final.Metrics.RTOCompliance {
			o.alert(ctx, rn, domain.AlertRTOViolation, domain.SeverityWarning,
				fmt.Sprintf("recovery took %.0fs, target RTO is %ds", final.Metrics.TotalDurationSeconds, final.TargetRTOSeconds))
		}
		if !final.Metrics.RPOCompliance {
			o.alert(ctx, rn, domain.AlertRPOViolation, domain.SeverityWarning,
				fmt.Sprintf("data loss window %.0fs exceeds target RPO %ds", *final.Metrics.MaxDataLossSeconds, final.TargetRPOSeconds))
		}
	}

	if o.store != nil {
		pctx, cancel := context.WithTimeout(ctx, persistTimeout)
		if err := o.store.SaveExecution(pctx, final); err != nil {
			log.Printf("recovery: persist %s: %v", rn.id, err)
		}
		cancel()
	}

	o.execs.finish(rn.id, final)
	o.metrics.RecordRecoveryEnd(rn.plan.ID, string(status), end.Sub(final.StartTime),
		final.Metrics.RTOCompliance, final.Metrics.RPOCompliance)

	evType := domain.EventRecoveryCompleted
	switch status {
	case domain.ExecutionFailed:
		evType = domain.EventRecoveryFailed
	case domain.ExecutionCancelled:
		evType = domain.EventRecoveryCancelled
	}
	o.publish(rn, domain.Event{Type: evType, Status: string(status)})
	log.Printf("recovery: %s %s in %.1fs (rto_compliance=%v rpo_compliance=%v errors=%d warnings=%d)",
		rn.id, status, final.Metrics.TotalDurationSeconds, final.Metrics.RTOCompliance,
		final.Metrics.RPOCompliance, len(final.Errors), len(final.Warnings))
}

func maxDataLoss(e *domain.RecoveryExecution) *float64 {
	var out *float64
	for _, st := range e.ComponentStatus {
		if st.DataLossWindowSeconds == nil {
			continue
		}
		if out == nil || *st.DataLossWindowSeconds > *out {
			v := *st.DataLossWindowSeconds
			out = &v
		}
	}
	return out
}

func (o *Orchestrator) enterPhase(rn *run, phase domain.Phase) {
	rn.update(func(e *domain.RecoveryExecution) { e.CurrentPhase = phase })
	o.publish(rn, domain.Event{Type: domain.EventPhaseChanged, Phase: phase})
}

func (o *Orchestrator) warn(rn *run, msg string) {
	rn.update(func(e *domain.RecoveryExecution) { e.Warnings = append(e.Warnings, msg) })
	log.Printf("recovery: %s warning: %s", rn.id, msg)
}

func (o *Orchestrator) publish(rn *run, ev domain.Event) {
	if o.events == nil {
		return
	}
	ev.ExecutionID = rn.id
	ev.PlanID = rn.plan.ID
	if ev.Phase == "" {
		rn.mu.Lock()
		ev.Phase = rn.exec.CurrentPhase
		rn.mu.Unlock()
	}
	ev.Timestamp = o.now()
	o.events.Publish(ev)
}

func (o *Orchestrator) alert(ctx context.Context, rn *run, kind domain.AlertKind, severity domain.Severity, msg string) {
	if o.alerts == nil {
		return
	}
	err := o.alerts.Alert(ctx, domain.Alert{
		Kind:        kind,
		ExecutionID: rn.id,
		PlanID:      rn.plan.ID,
		Severity:    severity,
		Message:     msg,
		Timestamp:   o.now(),
	})
	if err != nil {
		log.Printf("recovery: alert %s for %s: %v", kind, rn.id, err)
	}
}

// Get returns a copy of an active or retained execution
func (o *Orchestrator) Get(id string) (*domain.RecoveryExecution, error) {
	if rn, ok := o.execs.run(id); ok {
		return rn.snapshot(), nil
	}
	if e, ok := o.execs.finished(id); ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, id)
}

// List returns active and retained executions, newest first
func (o *Orchestrator) List() []*domain.RecoveryExecution {
	return o.execs.list()
}

// Active is the number of executions in progress
func (o *Orchestrator) Active() int {
	return len(o.execs.runs())
}

func (o *Orchestrator) activeRun(id string) (*run, error) {
	if rn, ok := o.execs.run(id); ok {
		return rn, nil
	}
	if _, ok := o.execs.finished(id); ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrExecutionFinished, id)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, id)
}

// Cancel stops the execution from starting new groups or retries. Work in
// flight finishes its current attempt.
func (o *Orchestrator) Cancel(id string) error {
	rn, err := o.activeRun(id)
	if err != nil {
		return err
	}
	if rn.cancel() {
		log.Printf("recovery: cancel requested for %s", id)
	}
	return nil
}

// Pause holds the execution before its next group
func (o *Orchestrator) Pause(id string) error {
	rn, err := o.activeRun(id)
	if err != nil {
		return err
	}
	if !rn.paused.CompareAndSwap(false, true) {
		return nil
	}
	rn.update(func(e *domain.RecoveryExecution) {
		if e.Status == domain.ExecutionRunning {
			e.Status = domain.ExecutionPaused
		}
	})
	log.Printf("recovery: %s paused", id)
	o.publish(rn, domain.Event{Type: domain.EventRecoveryPaused, Status: string(domain.ExecutionPaused)})
	return nil
}

// Resume releases a paused execution
func (o *Orchestrator) Resume(id string) error {
	rn, err := o.activeRun(id)
	if err != nil {
		return err
	}
	if !rn.paused.CompareAndSwap(true, false) {
		return nil
	}
	rn.update(func(e *domain.RecoveryExecution) {
		if e.Status == domain.ExecutionPaused {
			e.Status = domain.ExecutionRunning
		}
	})
	rn.signal()
	log.Printf("recovery: %s resumed", id)
	o.publish(rn, domain.Event{Type: domain.EventRecoveryResumed, Status: string(domain.ExecutionRunning)})
	return nil
}

// Wait blocks until the execution finishes or ctx is done
func (o *Orchestrator) Wait(ctx context.Context, id string) (*domain.RecoveryExecution, error) {
	if rn, ok := o.execs.run(id); ok {
		select {
		case <-rn.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.Get(id)
}

func (o *Orchestrator) cancelAll(reason string) {
	msg := "emergency stop triggered"
	if reason != "" {
		msg += ": " + reason
	}
	for _, rn := range o.execs.runs() {
		rn.cancel()
		o.warn(rn, msg)
	}
}
