package probe

import (
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// Builder turns health-check configs from a plan into probes
type Builder struct {
	// Clientset is optional; k8s probes fail to build without it
	Clientset kubernetes.Interface
}

// Build creates a probe for target (usually a component ID) from cfg
func (b *Builder) Build(target string, cfg domain.HealthCheckConfig) (Probe, error) {
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s", target, cfg.Type)
	}
	props := cfg.Properties
	timeout := time.Duration(IntProp(props, "request_timeout_seconds", 0)) * time.Second

	switch cfg.Type {
	case domain.ProbeTypeHTTP:
		hp, err := NewHTTPProbe(HTTPProbeConfig{
			Name:           name,
			Target:         target,
			URL:            StringProp(props, "url"),
			Method:         StringProp(props, "method"),
			Body:           StringProp(props, "body"),
			ExpectedStatus: IntProp(props, "expected_status", 200),
			BodyPattern:    StringProp(props, "body_pattern"),
			Headers:        StringMapProp(props, "headers"),
			Timeout:        timeout,
		})
		if err != nil {
			return nil, err
		}
		return hp, nil
	case domain.ProbeTypeCmd:
		return NewCmdProbe(CmdProbeConfig{
			Name:             name,
			Target:           target,
			Command:          StringProp(props, "command"),
			ExpectedExitCode: IntProp(props, "expected_exit_code", 0),
			OutputContains:   StringProp(props, "output_contains"),
			Timeout:          timeout,
		}), nil
	case domain.ProbeTypeK8s:
		if b == nil || b.Clientset == nil {
			return nil, fmt.Errorf("k8s probe %s: no kubernetes client configured", name)
		}
		return NewK8sProbe(K8sProbeConfig{
			Name:          name,
			Target:        target,
			Clientset:     b.Clientset,
			Namespace:     StringProp(props, "namespace"),
			ResourceKind:  StringProp(props, "resource_kind"),
			ResourceName:  StringProp(props, "resource_name"),
			ExpectedValue: StringProp(props, "expected_value"),
		}), nil
	case domain.ProbeTypePrometheus:
		return NewPromProbe(PromProbeConfig{
			Name:       name,
			Target:     target,
			Endpoint:   StringProp(props, "endpoint"),
			Query:      StringProp(props, "query"),
			Comparator: StringProp(props, "comparator"),
			Threshold:  FloatProp(props, "threshold", 0),
			AllSeries:  BoolProp(props, "all_series"),
			Timeout:    timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown probe type %q", cfg.Type)
	}
}

// StringProp reads a string property, "" when absent
func StringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// BoolProp reads a boolean property
func BoolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

// IntProp reads a numeric property decoded from JSON (float64) or YAML (int)
func IntProp(props map[string]any, key string, fallback int) int {
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// FloatProp reads a numeric property as float64
func FloatProp(props map[string]any, key string, fallback float64) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// StringSliceProp reads a list of strings
func StringSliceProp(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// StringMapProp reads a string-to-string map
func StringMapProp(props map[string]any, key string) map[string]string {
	switch v := props[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
