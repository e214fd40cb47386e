package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/drorchestrator/backend-go/internal/domain"
)

func TestBuilderBuild(t *testing.T) {
	b := &Builder{Clientset: fake.NewSimpleClientset()}

	tests := []struct {
		name     string
		cfg      domain.HealthCheckConfig
		wantType domain.ProbeType
		wantName string
	}{
		{
			name:     "http from json numbers",
			cfg:      domain.HealthCheckConfig{Type: domain.ProbeTypeHTTP, Properties: map[string]any{"url": "http://api/health", "expected_status": float64(204)}},
			wantType: "http",
			wantName: "api-http",
		},
		{
			name:     "cmd with explicit name",
			cfg:      domain.HealthCheckConfig{Name: "pg-ready", Type: domain.ProbeTypeCmd, Properties: map[string]any{"command": "pg_isready", "expected_exit_code": 0}},
			wantType: "cmd",
			wantName: "pg-ready",
		},
		{
			name:     "k8s",
			cfg:      domain.HealthCheckConfig{Type: domain.ProbeTypeK8s, Properties: map[string]any{"resource_kind": "deployment", "resource_name": "api"}},
			wantType: "k8s",
			wantName: "api-k8s",
		},
		{
			name:     "prometheus",
			cfg:      domain.HealthCheckConfig{Type: domain.ProbeTypePrometheus, Properties: map[string]any{"endpoint": "http://prom:9090", "query": "up", "threshold": 1}},
			wantType: "prometheus",
			wantName: "api-prometheus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := b.Build("api", tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, p.Kind())
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestBuilderErrors(t *testing.T) {
	_, err := (&Builder{}).Build("api", domain.HealthCheckConfig{Type: domain.ProbeTypeK8s})
	assert.Error(t, err)

	_, err = (&Builder{}).Build("api", domain.HealthCheckConfig{Type: "smtp"})
	assert.Error(t, err)

	_, err = (&Builder{}).Build("api", domain.HealthCheckConfig{Type: domain.ProbeTypeHTTP})
	assert.Error(t, err, "url is required")
}

func TestPropHelpers(t *testing.T) {
	props := map[string]any{
		"s":     "v",
		"i":     3,
		"f":     2.5,
		"b":     true,
		"list":  []any{"a", 1, "b"},
		"hdrs":  map[string]any{"X-Token": "t", "n": 1},
		"plain": map[string]string{"k": "v"},
	}

	assert.Equal(t, "v", StringProp(props, "s"))
	assert.Equal(t, "", StringProp(props, "missing"))
	assert.Equal(t, 3, IntProp(props, "i", 0))
	assert.Equal(t, 2, IntProp(props, "f", 0))
	assert.Equal(t, 7, IntProp(props, "missing", 7))
	assert.Equal(t, 3.0, FloatProp(props, "i", 0))
	assert.True(t, BoolProp(props, "b"))
	assert.Equal(t, []string{"a", "b"}, StringSliceProp(props, "list"))
	assert.Equal(t, map[string]string{"X-Token": "t"}, StringMapProp(props, "hdrs"))
	assert.Equal(t, map[string]string{"k": "v"}, StringMapProp(props, "plain"))
}
