package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsFields(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	assert.NotNil(t, m.RecoveriesTotal)
	assert.NotNil(t, m.RecoveryDurationSeconds)
	assert.NotNil(t, m.ActiveRecoveries)
	assert.NotNil(t, m.ComponentRecoveriesTotal)
	assert.NotNil(t, m.ComponentDurationSeconds)
	assert.NotNil(t, m.ComponentRetriesTotal)
	assert.NotNil(t, m.RollbackTotal)
	assert.NotNil(t, m.ObjectiveCompliance)
	assert.NotNil(t, m.ResourceUtilization)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HTTPRequestDuration)
}

func TestRecordRecoveryLifecycle(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordRecoveryStart()
	m.RecordRecoveryStart()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveRecoveries))

	m.RecordRecoveryEnd("plan-a", "completed", 90*time.Second, true, false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRecoveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecoveriesTotal.WithLabelValues("plan-a", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObjectiveCompliance.WithLabelValues("rto", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObjectiveCompliance.WithLabelValues("rpo", "false")))
}

func TestRecordComponent(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordComponent("database", "completed", time.Second, 2)
	m.RecordComponent("database", "failed", time.Second, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ComponentRetriesTotal.WithLabelValues("database")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComponentRecoveriesTotal.WithLabelValues("database", "failed")))
}

func TestRecordRollbackAndUtilization(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordRollback("success")
	m.RecordRollback("failed")
	m.SetUtilization(map[string]float64{"cpu": 25, "memory": 50})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollbackTotal.WithLabelValues("failed")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.ResourceUtilization.WithLabelValues("memory")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordRecoveryStart()
		m.RecordRecoveryEnd("p", "failed", time.Second, false, false)
		m.RecordComponent("cache", "completed", time.Second, 1)
		m.RecordRollback("success")
		m.SetUtilization(map[string]float64{"cpu": 1})
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetricsWith(reg)
	assert.Panics(t, func() { NewMetricsWith(reg) })
}
