package domain

import "time"

// ExecutionStatus is the lifecycle state of a recovery execution
type ExecutionStatus string

const (
	ExecutionPlanned   ExecutionStatus = "planned"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Phase is the orchestrator stage an execution is in
type Phase string

const (
	PhasePreparation  Phase = "preparation"
	PhaseValidation   Phase = "validation"
	PhaseRecovery     Phase = "recovery"
	PhaseVerification Phase = "verification"
	PhaseFinalization Phase = "finalization"
	PhaseRollback     Phase = "rollback"
)

// ComponentStatus is the per-component recovery state
type ComponentStatus string

const (
	ComponentPending   ComponentStatus = "pending"
	ComponentRunning   ComponentStatus = "running"
	ComponentRetrying  ComponentStatus = "retrying"
	ComponentCompleted ComponentStatus = "completed"
	ComponentFailed    ComponentStatus = "failed"
	ComponentSkipped   ComponentStatus = "skipped"
)

// Severity of a recorded error
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

// RecoveryError is one failure recorded against an execution
type RecoveryError struct {
	ComponentID string    `json:"component_id,omitempty"`
	Phase       Phase     `json:"phase"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
}

// ComponentRecoveryStatus tracks one component within an execution
type ComponentRecoveryStatus struct {
	ComponentID      string          `json:"component_id"`
	Status           ComponentStatus `json:"status"`
	StartTime        *time.Time      `json:"start_time,omitempty"`
	EndTime          *time.Time      `json:"end_time,omitempty"`
	Progress         float64         `json:"progress"`
	BytesTransferred int64           `json:"bytes_transferred"`
	TotalBytes       int64           `json:"total_bytes"`
	RetryCount       int             `json:"retry_count"`
	Errors           []string        `json:"errors,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
	// DataLossWindowSeconds is set when the restorer can tell how much data was lost
	DataLossWindowSeconds *float64 `json:"data_loss_window_seconds,omitempty"`
}

// Duration returns how long the component took, zero if unfinished
func (s *ComponentRecoveryStatus) Duration() time.Duration {
	if s.StartTime == nil || s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(*s.StartTime)
}

// Clone returns a deep copy
func (s *ComponentRecoveryStatus) Clone() *ComponentRecoveryStatus {
	out := *s
	out.Errors = append([]string(nil), s.Errors...)
	out.Warnings = append([]string(nil), s.Warnings...)
	if s.StartTime != nil {
		t := *s.StartTime
		out.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	if s.DataLossWindowSeconds != nil {
		v := *s.DataLossWindowSeconds
		out.DataLossWindowSeconds = &v
	}
	return &out
}

// ExecutionProgress aggregates component counts
type ExecutionProgress struct {
	TotalComponents     int     `json:"total_components"`
	CompletedComponents int     `json:"completed_components"`
	FailedComponents    int     `json:"failed_components"`
	SkippedComponents   int     `json:"skipped_components"`
	CurrentParallelism  int     `json:"current_parallelism"`
	Percent             float64 `json:"percent"`
	// EstimatedTimeRemainingSeconds is targetRTO minus elapsed, floored at zero
	EstimatedTimeRemainingSeconds float64 `json:"estimated_time_remaining_seconds"`
}

// Recompute refreshes the percentage from the counts
func (p *ExecutionProgress) Recompute() {
	if p.TotalComponents == 0 {
		p.Percent = 100
		return
	}
	done := p.CompletedComponents + p.FailedComponents + p.SkippedComponents
	p.Percent = float64(done) / float64(p.TotalComponents) * 100
}

// ExecutionMetrics summarizes timing and objective compliance
type ExecutionMetrics struct {
	TotalDurationSeconds   float64            `json:"total_duration_seconds"`
	ComponentRecoveryTimes map[string]float64 `json:"component_recovery_times"`
	ResourceUtilization    map[string]float64 `json:"resource_utilization"`
	MaxDataLossSeconds     *float64           `json:"max_data_loss_seconds,omitempty"`
	RTOCompliance          bool               `json:"rto_compliance"`
	RPOCompliance          bool               `json:"rpo_compliance"`
}

// RollbackStep is the outcome of undoing one component
type RollbackStep struct {
	ComponentID string         `json:"component_id"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RollbackRecord is written whenever rollback is attempted
type RollbackRecord struct {
	Attempted bool           `json:"attempted"`
	StartedAt time.Time      `json:"started_at"`
	Steps     []RollbackStep `json:"steps"`
}

// RecoveryExecution is the live and historical record of one plan run
type RecoveryExecution struct {
	ID               string                              `json:"id"`
	PlanID           string                              `json:"plan_id"`
	PlanName         string                              `json:"plan_name,omitempty"`
	Status           ExecutionStatus                     `json:"status"`
	CurrentPhase     Phase                               `json:"current_phase"`
	DryRun           bool                                `json:"dry_run"`
	TriggeredBy      string                              `json:"triggered_by,omitempty"`
	TargetRTOSeconds int                                 `json:"target_rto_seconds"`
	TargetRPOSeconds int                                 `json:"target_rpo_seconds"`
	StartTime        time.Time                           `json:"start_time"`
	EndTime          *time.Time                          `json:"end_time,omitempty"`
	Groups           []ExecutionGroup                    `json:"groups"`
	ComponentStatus  map[string]*ComponentRecoveryStatus `json:"component_status"`
	Progress         ExecutionProgress                   `json:"progress"`
	Metrics          ExecutionMetrics                    `json:"metrics"`
	Errors           []RecoveryError                     `json:"errors"`
	Warnings         []string                            `json:"warnings"`
	Rollback         *RollbackRecord                     `json:"rollback,omitempty"`
}

// Clone returns a deep copy safe to hand to readers
func (e *RecoveryExecution) Clone() *RecoveryExecution {
	if e == nil {
		return nil
	}
	out := *e
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	out.Groups = make([]ExecutionGroup, len(e.Groups))
	for i, g := range e.Groups {
		g.ComponentIDs = append([]string(nil), g.ComponentIDs...)
		out.Groups[i] = g
	}
	out.ComponentStatus = make(map[string]*ComponentRecoveryStatus, len(e.ComponentStatus))
	for id, s := range e.ComponentStatus {
		out.ComponentStatus[id] = s.Clone()
	}
	out.Metrics.ComponentRecoveryTimes = cloneFloats(e.Metrics.ComponentRecoveryTimes)
	out.Metrics.ResourceUtilization = cloneFloats(e.Metrics.ResourceUtilization)
	if e.Metrics.MaxDataLossSeconds != nil {
		v := *e.Metrics.MaxDataLossSeconds
		out.Metrics.MaxDataLossSeconds = &v
	}
	out.Errors = append([]RecoveryError(nil), e.Errors...)
	out.Warnings = append([]string(nil), e.Warnings...)
	if e.Rollback != nil {
		rb := *e.Rollback
		rb.Steps = append([]RollbackStep(nil), e.Rollback.Steps...)
		out.Rollback = &rb
	}
	return &out
}

func cloneFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RTOCompliant reports whether end-start is within target, inclusive
func RTOCompliant(start, end time.Time, target time.Duration) bool {
	return end.Sub(start) <= target
}
