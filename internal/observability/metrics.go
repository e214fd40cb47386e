package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	RecoveriesTotal          *prometheus.CounterVec
	RecoveryDurationSeconds  prometheus.Histogram
	ActiveRecoveries         prometheus.Gauge
	ComponentRecoveriesTotal *prometheus.CounterVec
	ComponentDurationSeconds *prometheus.HistogramVec
	ComponentRetriesTotal    *prometheus.CounterVec
	RollbackTotal            *prometheus.CounterVec
	ObjectiveCompliance      *prometheus.CounterVec
	ResourceUtilization      *prometheus.GaugeVec
	HTTPRequestsTotal        *prometheus.CounterVec
	HTTPRequestDuration      *prometheus.HistogramVec
}

// NewMetrics registers all metrics with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecoveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drorchestrator_recoveries_total",
			Help: "Total number of recovery executions by final status",
		}, []string{"plan_id", "status"}),

		RecoveryDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "drorchestrator_recovery_duration_seconds",
			Help:    "Wall-clock duration of recovery executions",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 14400},
		}),

		ActiveRecoveries: f.NewGauge(prometheus.GaugeOpts{
			Name: "drorchestrator_active_recoveries",
			Help: "Number of recovery executions in progress",
		}),

		ComponentRecoveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drorchestrator_component_recoveries_total",
			Help: "Component recoveries by type and final status",
		}, []string{"component_type", "status"}),

		ComponentDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drorchestrator_component_recovery_duration_seconds",
			Help:    "Duration of component recoveries",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}, []string{"component_type"}),

		ComponentRetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drorchestrator_component_retries_total",
			Help: "Retry attempts made while recovering components",
		}, []string{"component_type"}),

		RollbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drorchestrator_rollback_total",
			Help: "Rollback steps by outcome",
		}, []string{"status"}),

		ObjectiveCompliance: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drorchestrator_objective_compliance_total",
			Help: "Finished recoveries by objective (rto, rpo) and whether it was met",
		}, []string{"objective", "met"}),

		ResourceUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drorchestrator_resource_utilization_percent",
			Help: "Share of the recovery resource pool currently reserved",
		}, []string{"resource"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drorchestrator_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drorchestrator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		}, []string{"method", "path"}),
	}
}

// RecordRecoveryStart increments the active recoveries gauge
func (m *Metrics) RecordRecoveryStart() {
	if m == nil {
		return
	}
	m.ActiveRecoveries.Inc()
}

// RecordRecoveryEnd records execution completion and objective compliance
func (m *Metrics) RecordRecoveryEnd(planID, status string, duration time.Duration, rtoMet, rpoMet bool) {
	if m == nil {
		return
	}
	m.ActiveRecoveries.Dec()
	m.RecoveriesTotal.WithLabelValues(planID, status).Inc()
	m.RecoveryDurationSeconds.Observe(duration.Seconds())
	m.ObjectiveCompliance.WithLabelValues("rto", boolLabel(rtoMet)).Inc()
	m.ObjectiveCompliance.WithLabelValues("rpo", boolLabel(rpoMet)).Inc()
}

// RecordComponent records one finished component
func (m *Metrics) RecordComponent(componentType, status string, duration time.Duration, retries int) {
	if m == nil {
		return
	}
	m.ComponentRecoveriesTotal.WithLabelValues(componentType, status).Inc()
	m.ComponentDurationSeconds.WithLabelValues(componentType).Observe(duration.Seconds())
	if retries > 0 {
		m.ComponentRetriesTotal.WithLabelValues(componentType).Add(float64(retries))
	}
}

// RecordRollback records a rollback step outcome
func (m *Metrics) RecordRollback(status string) {
	if m == nil {
		return
	}
	m.RollbackTotal.WithLabelValues(status).Inc()
}

// SetUtilization publishes per-resource pool usage
func (m *Metrics) SetUtilization(util map[string]float64) {
	if m == nil {
		return
	}
	for resource, pct := range util {
		m.ResourceUtilization.WithLabelValues(resource).Set(pct)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
