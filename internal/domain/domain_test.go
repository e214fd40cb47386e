package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceArithmetic(t *testing.T) {
	a := ResourceRequirements{CPUMillis: 1000, MemoryMB: 512, DiskMB: 100, NetworkMbps: 10}
	b := ResourceRequirements{CPUMillis: 500, MemoryMB: 256, DiskMB: 50, NetworkMbps: 5}

	assert.Equal(t, ResourceRequirements{1500, 768, 150, 15}, a.Add(b))
	assert.Equal(t, b, a.Sub(b))
	assert.True(t, b.FitsWithin(a))
	assert.False(t, a.FitsWithin(b))
	assert.True(t, b.Sub(a).Negative())
	assert.True(t, ResourceRequirements{}.IsZero())
	assert.Equal(t, a, a.Add(b).Sub(b))
}

func TestCriticalityRank(t *testing.T) {
	assert.Less(t, CriticalityCritical.Rank(), CriticalityHigh.Rank())
	assert.Less(t, CriticalityHigh.Rank(), CriticalityMedium.Rank())
	assert.Less(t, CriticalityMedium.Rank(), CriticalityLow.Rank())
	assert.Equal(t, CriticalityLow.Rank(), Criticality("").Rank())
}

func TestExecutionStatusTerminal(t *testing.T) {
	tests := []struct {
		status   ExecutionStatus
		terminal bool
	}{
		{ExecutionPlanned, false},
		{ExecutionRunning, false},
		{ExecutionPaused, false},
		{ExecutionCompleted, true},
		{ExecutionFailed, true},
		{ExecutionCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestRTOCompliantBoundary(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	target := 10 * time.Minute

	assert.True(t, RTOCompliant(start, start.Add(target-time.Millisecond), target))
	assert.True(t, RTOCompliant(start, start.Add(target), target), "exactly on target is compliant")
	assert.False(t, RTOCompliant(start, start.Add(target+time.Millisecond), target))
}

func TestProgressRecompute(t *testing.T) {
	p := ExecutionProgress{TotalComponents: 4, CompletedComponents: 2, FailedComponents: 1}
	p.Recompute()
	assert.Equal(t, 75.0, p.Percent)

	empty := ExecutionProgress{}
	empty.Recompute()
	assert.Equal(t, 100.0, empty.Percent)
}

func TestExecutionCloneIsDeep(t *testing.T) {
	now := time.Now()
	exec := &RecoveryExecution{
		ID:     "recovery_1_abc",
		Groups: []ExecutionGroup{{Index: 0, ComponentIDs: []string{"db"}}},
		ComponentStatus: map[string]*ComponentRecoveryStatus{
			"db": {ComponentID: "db", Status: ComponentRunning, StartTime: &now},
		},
		Metrics:  ExecutionMetrics{ComponentRecoveryTimes: map[string]float64{"db": 1}},
		Warnings: []string{"w"},
	}

	clone := exec.Clone()
	clone.ComponentStatus["db"].Status = ComponentFailed
	clone.Groups[0].ComponentIDs[0] = "other"
	clone.Metrics.ComponentRecoveryTimes["db"] = 99
	clone.Warnings[0] = "changed"

	assert.Equal(t, ComponentRunning, exec.ComponentStatus["db"].Status)
	assert.Equal(t, "db", exec.Groups[0].ComponentIDs[0])
	assert.Equal(t, 1.0, exec.Metrics.ComponentRecoveryTimes["db"])
	assert.Equal(t, "w", exec.Warnings[0])
}

func TestPlanCloneAndLookup(t *testing.T) {
	plan := &RecoveryPlan{
		ID:               "p1",
		TargetRTOSeconds: 600,
		TargetRPOSeconds: 60,
		Components: []RecoveryComponent{
			{ID: "db", Type: ComponentDatabase, Criticality: CriticalityCritical, Dependencies: []string{}},
			{ID: "app", Type: ComponentApplication, Dependencies: []string{"db"}},
		},
	}

	clone := plan.Clone()
	clone.Components[1].Dependencies[0] = "x"

	c, ok := plan.Component("app")
	require.True(t, ok)
	assert.Equal(t, []string{"db"}, c.Dependencies)
	assert.True(t, plan.Components[0].IsCritical())
	assert.Equal(t, 10*time.Minute, plan.TargetRTO())
	assert.Equal(t, time.Minute, plan.TargetRPO())

	_, ok = plan.Component("missing")
	assert.False(t, ok)
}

func TestHealthCheckDefaults(t *testing.T) {
	hc := HealthCheckConfig{}
	assert.Equal(t, 5*time.Second, hc.Interval())
	assert.Equal(t, time.Minute, hc.Timeout())

	hc = HealthCheckConfig{IntervalSeconds: 2, TimeoutSeconds: 10}
	assert.Equal(t, 2*time.Second, hc.Interval())
	assert.Equal(t, 10*time.Second, hc.Timeout())
}

func TestEventTerminal(t *testing.T) {
	assert.True(t, Event{Type: EventRecoveryCompleted}.Terminal())
	assert.True(t, Event{Type: EventRecoveryFailed}.Terminal())
	assert.True(t, Event{Type: EventRecoveryCancelled}.Terminal())
	assert.False(t, Event{Type: EventComponentStatusChanged}.Terminal())
}
