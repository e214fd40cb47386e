package domain

import "time"

// PlanType classifies the scope of a recovery plan
type PlanType string

const (
	PlanTypeFullDisaster PlanType = "full_disaster"
	PlanTypePartial      PlanType = "partial"
	PlanTypePointInTime  PlanType = "point_in_time"
	PlanTypeSelective    PlanType = "selective"
)

// ComponentType selects the restorer used for a component
type ComponentType string

const (
	ComponentDatabase      ComponentType = "database"
	ComponentApplication   ComponentType = "application"
	ComponentConfiguration ComponentType = "configuration"
	ComponentSecrets       ComponentType = "secrets"
	ComponentStorage       ComponentType = "storage"
	ComponentCache         ComponentType = "cache"
)

// ComponentTypes lists every supported component type
var ComponentTypes = []ComponentType{
	ComponentDatabase, ComponentApplication, ComponentConfiguration,
	ComponentSecrets, ComponentStorage, ComponentCache,
}

// Criticality ranks how important a component is to the recovery
type Criticality string

const (
	CriticalityCritical Criticality = "critical"
	CriticalityHigh     Criticality = "high"
	CriticalityMedium   Criticality = "medium"
	CriticalityLow      Criticality = "low"
)

// Rank orders criticalities, lower is more important
func (c Criticality) Rank() int {
	switch c {
	case CriticalityCritical:
		return 0
	case CriticalityHigh:
		return 1
	case CriticalityMedium:
		return 2
	default:
		return 3
	}
}

// DependencyType describes how a component relies on another
type DependencyType string

const (
	DependencyHard  DependencyType = "hard"
	DependencySoft  DependencyType = "soft"
	DependencyOrder DependencyType = "order"
	DependencyData  DependencyType = "data"
)

// ProbeType identifies the probe implementation
type ProbeType string

const (
	ProbeTypeHTTP       ProbeType = "http"
	ProbeTypeCmd        ProbeType = "cmd"
	ProbeTypeK8s        ProbeType = "k8s"
	ProbeTypePrometheus ProbeType = "prometheus"
)

// ActionType identifies how a post-recovery action is run
type ActionType string

const (
	ActionHTTP    ActionType = "http"
	ActionCmd     ActionType = "cmd"
	ActionK8sExec ActionType = "k8s_exec"
)

// HealthCheckConfig describes how to decide a component is healthy
type HealthCheckConfig struct {
	Name            string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type            ProbeType      `json:"type" yaml:"type" binding:"required"`
	Properties      map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	IntervalSeconds int            `json:"interval_seconds,omitempty" yaml:"interval_seconds,omitempty"`
	TimeoutSeconds  int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Retries         int            `json:"retries,omitempty" yaml:"retries,omitempty"`
	Critical        bool           `json:"critical,omitempty" yaml:"critical,omitempty"`
}

// Interval returns the polling interval, defaulting to 5s
func (h HealthCheckConfig) Interval() time.Duration {
	if h.IntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(h.IntervalSeconds) * time.Second
}

// Timeout returns the overall poll deadline, defaulting to 60s
func (h HealthCheckConfig) Timeout() time.Duration {
	if h.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// PostRecoveryAction runs after a successful restore and health check
type PostRecoveryAction struct {
	Name           string         `json:"name" yaml:"name"`
	Type           ActionType     `json:"type" yaml:"type"`
	Properties     map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Critical       bool           `json:"critical" yaml:"critical"`
}

// RecoveryComponent is one restorable unit of a plan
type RecoveryComponent struct {
	ID                           string               `json:"id" yaml:"id" binding:"required"`
	Name                         string               `json:"name" yaml:"name"`
	Type                         ComponentType        `json:"type" yaml:"type" binding:"required"`
	Criticality                  Criticality          `json:"criticality" yaml:"criticality"`
	BackupLocation               string               `json:"backup_location" yaml:"backup_location"`
	TargetLocation               string               `json:"target_location" yaml:"target_location"`
	SizeBytes                    int64                `json:"size_bytes" yaml:"size_bytes"`
	EstimatedRecoveryTimeSeconds int                  `json:"estimated_recovery_time_seconds" yaml:"estimated_recovery_time_seconds"`
	TimeoutSeconds               int                  `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Dependencies                 []string             `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	HealthCheck                  *HealthCheckConfig   `json:"health_check,omitempty" yaml:"health_check,omitempty"`
	PostRecoveryActions          []PostRecoveryAction `json:"post_recovery_actions,omitempty" yaml:"post_recovery_actions,omitempty"`
	Resources                    ResourceRequirements `json:"resources" yaml:"resources"`
	Parameters                   map[string]any       `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// IsCritical reports whether the component has critical criticality
func (c RecoveryComponent) IsCritical() bool {
	return c.Criticality == CriticalityCritical
}

// EstimatedRecoveryTime returns the estimate as a duration
func (c RecoveryComponent) EstimatedRecoveryTime() time.Duration {
	return time.Duration(c.EstimatedRecoveryTimeSeconds) * time.Second
}

// Timeout returns the per-attempt restore deadline, or fallback when unset
func (c RecoveryComponent) Timeout(fallback time.Duration) time.Duration {
	if c.TimeoutSeconds <= 0 {
		return fallback
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RecoveryDependency is an explicit edge: ComponentID depends on DependsOn
type RecoveryDependency struct {
	ComponentID         string         `json:"component_id" yaml:"component_id"`
	DependsOn           []string       `json:"depends_on" yaml:"depends_on"`
	Type                DependencyType `json:"type" yaml:"type"`
	Optional            bool           `json:"optional" yaml:"optional"`
	ParallelRecoverable bool           `json:"parallel_recoverable" yaml:"parallel_recoverable"`
}

// RecoveryPlan is a named, validated set of components and their ordering
type RecoveryPlan struct {
	ID                       string               `json:"id" yaml:"id" binding:"required"`
	Name                     string               `json:"name" yaml:"name"`
	Description              string               `json:"description,omitempty" yaml:"description,omitempty"`
	Type                     PlanType             `json:"type" yaml:"type"`
	Priority                 int                  `json:"priority" yaml:"priority"`
	TargetRTOSeconds         int                  `json:"target_rto_seconds" yaml:"target_rto_seconds"`
	TargetRPOSeconds         int                  `json:"target_rpo_seconds" yaml:"target_rpo_seconds"`
	Components               []RecoveryComponent  `json:"components" yaml:"components"`
	Dependencies             []RecoveryDependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	EstimatedDurationSeconds int                  `json:"estimated_duration_seconds" yaml:"estimated_duration_seconds"`
	AutoRollback             bool                 `json:"auto_rollback" yaml:"auto_rollback"`
	SystemChecks             []HealthCheckConfig  `json:"system_checks,omitempty" yaml:"system_checks,omitempty"`
}

// TargetRTO returns the recovery time objective
func (p *RecoveryPlan) TargetRTO() time.Duration {
	return time.Duration(p.TargetRTOSeconds) * time.Second
}

// TargetRPO returns the recovery point objective
func (p *RecoveryPlan) TargetRPO() time.Duration {
	return time.Duration(p.TargetRPOSeconds) * time.Second
}

// Component looks up a component by ID
func (p *RecoveryPlan) Component(id string) (RecoveryComponent, bool) {
	for _, c := range p.Components {
		if c.ID == id {
			return c, true
		}
	}
	return RecoveryComponent{}, false
}

// Clone returns a deep copy of the plan
func (p *RecoveryPlan) Clone() *RecoveryPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Components = make([]RecoveryComponent, len(p.Components))
	for i, c := range p.Components {
		cc := c
		cc.Dependencies = append([]string(nil), c.Dependencies...)
		cc.PostRecoveryActions = append([]PostRecoveryAction(nil), c.PostRecoveryActions...)
		cc.Parameters = cloneMap(c.Parameters)
		if c.HealthCheck != nil {
			hc := *c.HealthCheck
			hc.Properties = cloneMap(c.HealthCheck.Properties)
			cc.HealthCheck = &hc
		}
		out.Components[i] = cc
	}
	out.Dependencies = make([]RecoveryDependency, len(p.Dependencies))
	for i, d := range p.Dependencies {
		dd := d
		dd.DependsOn = append([]string(nil), d.DependsOn...)
		out.Dependencies[i] = dd
	}
	out.SystemChecks = append([]HealthCheckConfig(nil), p.SystemChecks...)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RollbackFunc undoes the side effects of a restore
type RollbackFunc func() (map[string]any, error)
