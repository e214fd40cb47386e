package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drorchestrator/backend-go/internal/domain"
)

type stubProbe struct {
	result *Result
	err    error
}

func (p *stubProbe) Check(ctx context.Context) (*Result, error) { return p.result, p.err }
func (p *stubProbe) Name() string                               { return "stub" }
func (p *stubProbe) Kind() domain.ProbeType                     { return domain.ProbeTypeCmd }

func TestRun(t *testing.T) {
	checked := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		probe   *stubProbe
		healthy bool
		failure string
	}{
		{
			name:    "healthy",
			probe:   &stubProbe{result: &Result{Check: "stub", Healthy: true, CheckedAt: checked}},
			healthy: true,
		},
		{
			name:    "unhealthy without error",
			probe:   &stubProbe{result: &Result{Check: "stub"}},
			failure: "stub did not pass",
		},
		{
			name:    "unhealthy with error",
			probe:   &stubProbe{result: &Result{Check: "stub", Error: "replicas 1/3"}},
			failure: "replicas 1/3",
		},
		{
			name:    "check error",
			probe:   &stubProbe{err: errors.New("connection refused")},
			failure: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Run(context.Background(), tt.probe)
			assert.Equal(t, tt.healthy, res.Healthy)
			assert.Equal(t, tt.failure, res.Failure())
			assert.Equal(t, "stub", res.Check)
			assert.False(t, res.CheckedAt.IsZero())
		})
	}
}

func TestRunKeepsProbeTimestamps(t *testing.T) {
	checked := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &stubProbe{result: &Result{Check: "stub", Healthy: true, CheckedAt: checked, Latency: time.Second}}

	res := Run(context.Background(), p)
	assert.Equal(t, checked, res.CheckedAt)
	assert.Equal(t, time.Second, res.Latency)
}
