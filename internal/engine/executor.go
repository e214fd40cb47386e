package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/drorchestrator/backend-go/internal/arbiter"
	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/probe"
	"github.com/drorchestrator/backend-go/internal/restore"
	"github.com/drorchestrator/backend-go/internal/retry"
	"github.com/drorchestrator/backend-go/internal/safety"
)

// StatusUpdate reports a component transition to the orchestrator
type StatusUpdate struct {
	ComponentID string
	Status      domain.ComponentStatus
	Attempt     int
	Err         error
}

// RunOptions carries per-execution hooks into a component run
type RunOptions struct {
	ExecutionID string
	DryRun      bool
	// Proceed is checked before each retry and again once resources are
	// granted; returning false stops the component
	Proceed func() bool
	// Stop aborts resource waits when done. Restores already started are
	// not interrupted.
	Stop     context.Context
	OnStatus func(StatusUpdate)
	// OnRestored receives every successful restore, including ones whose
	// attempt later fails a health check
	OnRestored func(comp domain.RecoveryComponent, out *restore.Outcome)
}

// ComponentResult is the terminal state of one component run
type ComponentResult struct {
	ComponentID string
	Status      domain.ComponentStatus
	Attempts    int
	StartTime   time.Time
	EndTime     time.Time
	Outcome     *restore.Outcome
	Warnings    []string
	// Errors holds one message per failed attempt
	Errors []string
	Err    error
}

// RetryCount is the number of attempts after the first
func (r *ComponentResult) RetryCount() int {
	if r.Attempts < 1 {
		return 0
	}
	return r.Attempts - 1
}

// Duration is the wall-clock time of the run
func (r *ComponentResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// ComponentExecutor runs reserve → restore → health check → post actions
// for one component, retrying the whole sequence on failure
type ComponentExecutor struct {
	restorers      *restore.Registry
	arbiter        *arbiter.Arbiter
	probes         *probe.Builder
	actions        *ActionRunner
	policy         retry.Policy
	restoreTimeout time.Duration
}

// NewComponentExecutor wires an executor; probes and actions may be nil
func NewComponentExecutor(
	restorers *restore.Registry,
	arb *arbiter.Arbiter,
	probes *probe.Builder,
	actions *ActionRunner,
	policy retry.Policy,
	restoreTimeout time.Duration,
) *ComponentExecutor {
	if probes == nil {
		probes = &probe.Builder{}
	}
	if actions == nil {
		actions = &ActionRunner{}
	}
	if restoreTimeout <= 0 {
		restoreTimeout = 30 * time.Minute
	}
	return &ComponentExecutor{
		restorers:      restorers,
		arbiter:        arb,
		probes:         probes,
		actions:        actions,
		policy:         policy,
		restoreTimeout: restoreTimeout,
	}
}

// Run recovers comp. Resources are never held once Run returns.
func (e *ComponentExecutor) Run(ctx context.Context, comp domain.RecoveryComponent, opts RunOptions) *ComponentResult {
	res := &ComponentResult{ComponentID: comp.ID, StartTime: time.Now().UTC()}
	emit := func(status domain.ComponentStatus, attempt int, err error) {
		if opts.OnStatus != nil {
			opts.OnStatus(StatusUpdate{ComponentID: comp.ID, Status: status, Attempt: attempt, Err: err})
		}
	}

	restorer, err := e.restorers.Lookup(comp.Type)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return e.finish(res, err, emit)
	}
	req := e.restorers.Estimate(comp)
	reservation := opts.ExecutionID + "/" + comp.ID

	emit(domain.ComponentRunning, 1, nil)
	attempts, err := retry.Do(ctx, e.policy, func(ctx context.Context, attempt int) error {
		out, warnings, err := e.attempt(ctx, comp, restorer, req, reservation, opts)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("attempt %d: %v", attempt, err))
			return err
		}
		res.Outcome = out
		res.Warnings = warnings
		return nil
	},
		retry.WithProceed(opts.Proceed),
		retry.WithNotify(func(attempt int, err error, next time.Duration) {
			log.Printf("recovery: %s attempt %d failed, retrying in %v: %v", comp.ID, attempt, next, err)
			emit(domain.ComponentRetrying, attempt+1, err)
		}),
	)
	res.Attempts = attempts
	return e.finish(res, err, emit)
}

func (e *ComponentExecutor) finish(res *ComponentResult, err error, emit func(domain.ComponentStatus, int, error)) *ComponentResult {
	res.EndTime = time.Now().UTC()
	res.Err = err
	switch {
	case errors.Is(err, domain.ErrCancelled):
		res.Status = domain.ComponentSkipped
	case err != nil:
		res.Status = domain.ComponentFailed
	default:
		res.Status = domain.ComponentCompleted
	}
	emit(res.Status, res.Attempts, err)
	return res
}

func (e *ComponentExecutor) attempt(
	ctx context.Context,
	comp domain.RecoveryComponent,
	restorer restore.Restorable,
	req domain.ResourceRequirements,
	reservation string,
	opts RunOptions,
) (*restore.Outcome, []string, error) {
	if err := e.reserve(ctx, comp, req, reservation, opts); err != nil {
		return nil, nil, err
	}
	defer e.release(reservation)

	if opts.DryRun {
		return &restore.Outcome{Success: true, Detail: map[string]any{"dry_run": true}}, nil, nil
	}

	var out *restore.Outcome
	err := safety.WithTimeout(ctx, comp.Timeout(e.restoreTimeout), func(ctx context.Context) error {
		var err error
		out, err = restorer.Restore(ctx, comp)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrUnsupportedComponentType), errors.Is(err, domain.ErrInvalidPlan):
		return nil, nil, retry.Permanent(fmt.Errorf("%w: %s: %w", domain.ErrComponentRestore, comp.ID, err))
	case err != nil:
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrComponentRestore, comp.ID, err)
	case out == nil || !out.Success:
		return nil, nil, fmt.Errorf("%w: %s: restore reported failure", domain.ErrComponentRestore, comp.ID)
	}
	if opts.OnRestored != nil {
		opts.OnRestored(comp, out)
	}

	if comp.HealthCheck != nil {
		if err := e.awaitHealthy(ctx, comp); err != nil {
			return out, nil, err
		}
	}

	var warnings []string
	for _, act := range comp.PostRecoveryActions {
		if _, err := e.actions.Run(ctx, comp.ID, act); err != nil {
			if act.Critical {
				return out, nil, fmt.Errorf("%w: %s action %s: %v", domain.ErrPostActionFailed, comp.ID, act.Name, err)
			}
			warnings = append(warnings, fmt.Sprintf("post-recovery action %s failed: %v", act.Name, err))
		}
	}
	return out, warnings, nil
}

// reserve waits for comp's resources. A wait ended by opts.Stop, or a grant
// that arrives after Proceed turned false, leaves nothing held and reports
// ErrCancelled.
func (e *ComponentExecutor) reserve(
	ctx context.Context,
	comp domain.RecoveryComponent,
	req domain.ResourceRequirements,
	reservation string,
	opts RunOptions,
) error {
	wait, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Stop != nil {
		defer context.AfterFunc(opts.Stop, cancel)()
	}

	notStarted := retry.Permanent(fmt.Errorf("%w: %s not started", domain.ErrCancelled, comp.ID))
	if err := e.arbiter.Reserve(wait, reservation, req, comp.IsCritical()); err != nil {
		if opts.Stop != nil && opts.Stop.Err() != nil {
			return notStarted
		}
		// pool shortfalls and cancelled waits will not improve with a retry
		return retry.Permanent(err)
	}
	if opts.Proceed != nil && !opts.Proceed() {
		e.release(reservation)
		return notStarted
	}
	return nil
}

func (e *ComponentExecutor) release(reservation string) {
	if _, err := e.arbiter.Release(reservation); err != nil {
		log.Printf("recovery: release %s: %v", reservation, err)
	}
}

func (e *ComponentExecutor) awaitHealthy(ctx context.Context, comp domain.RecoveryComponent) error {
	hc := *comp.HealthCheck
	p, err := e.probes.Build(comp.ID, hc)
	if err != nil {
		return retry.Permanent(fmt.Errorf("%w: %s health check: %v", domain.ErrInvalidPlan, comp.ID, err))
	}
	checks, err := safety.PollUntilHealthy(ctx, healthProbe{p}, safety.PollConfig{
		Interval:    hc.Interval(),
		Timeout:     hc.Timeout(),
		MaxFailures: hc.Retries,
	})
	if err != nil {
		return err
	}
	log.Printf("recovery: %s healthy after %d checks", comp.ID, checks)
	return nil
}

// healthProbe adapts a probe.Probe to the safety poller
type healthProbe struct {
	p probe.Probe
}

func (h healthProbe) Execute(ctx context.Context) (bool, error) {
	res, err := h.p.Check(ctx)
	if err != nil {
		return false, err
	}
	return res.Healthy, nil
}

func (h healthProbe) Name() string { return h.p.Name() }
