package probe

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// K8sProbe checks a restored Kubernetes object: that a workload has rolled
// out and is ready, that a pod reached a phase, or that a ConfigMap/Secret
// exists with a required key
type K8sProbe struct {
	name      string
	target    string
	clientset kubernetes.Interface
	namespace string
	kind      string
	object    string
	expected  string
}

// K8sProbeConfig holds construction parameters for K8sProbe
type K8sProbeConfig struct {
	Name         string
	Target       string
	Clientset    kubernetes.Interface
	Namespace    string
	ResourceKind string
	ResourceName string
	// ExpectedValue is the pod phase for pods or a required data key for configmaps/secrets
	ExpectedValue string
}

// NewK8sProbe creates a Kubernetes probe; the namespace defaults to "default"
func NewK8sProbe(cfg K8sProbeConfig) *K8sProbe {
	ns := cfg.Namespace
	if ns == "" {
		ns = "default"
	}
	return &K8sProbe{
		name:      cfg.Name,
		target:    cfg.Target,
		clientset: cfg.Clientset,
		namespace: ns,
		kind:      cfg.ResourceKind,
		object:    cfg.ResourceName,
		expected:  cfg.ExpectedValue,
	}
}

func (p *K8sProbe) Name() string           { return p.name }
func (p *K8sProbe) Kind() domain.ProbeType { return domain.ProbeTypeK8s }

func (p *K8sProbe) Check(ctx context.Context) (*Result, error) {
	if p.clientset == nil {
		return nil, fmt.Errorf("k8s probe %s: no kubernetes client configured", p.name)
	}
	switch p.kind {
	case "deployment", "statefulset", "daemonset":
		return p.checkWorkload(ctx)
	case "pod":
		return p.checkPod(ctx)
	case "configmap", "secret":
		return p.checkData(ctx)
	default:
		return nil, fmt.Errorf("k8s probe %s: unsupported resource kind %q", p.name, p.kind)
	}
}

func (p *K8sProbe) result(healthy bool, failure string, detail map[string]any) *Result {
	detail["namespace"] = p.namespace
	detail[p.kind] = p.object
	res := newResult(p.name, p.Kind(), p.target, healthy, detail)
	if !healthy {
		res.Error = fmt.Sprintf("%s %s/%s: %s", p.kind, p.namespace, p.object, failure)
	}
	return res
}

type rollout struct {
	desired, ready, updated int32
}

func (p *K8sProbe) rollout(ctx context.Context) (rollout, error) {
	apps := p.clientset.AppsV1()
	switch p.kind {
	case "deployment":
		d, err := apps.Deployments(p.namespace).Get(ctx, p.object, metav1.GetOptions{})
		if err != nil {
			return rollout{}, err
		}
		return rollout{replicas(d.Spec.Replicas), d.Status.ReadyReplicas, d.Status.UpdatedReplicas}, nil
	case "statefulset":
		s, err := apps.StatefulSets(p.namespace).Get(ctx, p.object, metav1.GetOptions{})
		if err != nil {
			return rollout{}, err
		}
		return rollout{replicas(s.Spec.Replicas), s.Status.ReadyReplicas, s.Status.UpdatedReplicas}, nil
	default:
		d, err := apps.DaemonSets(p.namespace).Get(ctx, p.object, metav1.GetOptions{})
		if err != nil {
			return rollout{}, err
		}
		return rollout{d.Status.DesiredNumberScheduled, d.Status.NumberReady, d.Status.UpdatedNumberScheduled}, nil
	}
}

func replicas(n *int32) int32 {
	if n == nil {
		return 1
	}
	return *n
}

// A workload is healthy once every desired replica runs the restored spec
// and is ready.
func (p *K8sProbe) checkWorkload(ctx context.Context) (*Result, error) {
	r, err := p.rollout(ctx)
	if err != nil {
		return nil, fmt.Errorf("k8s probe %s: get %s %s: %w", p.name, p.kind, p.object, err)
	}
	detail := map[string]any{
		"desired_replicas": r.desired,
		"ready_replicas":   r.ready,
		"updated_replicas": r.updated,
	}
	switch {
	case r.updated < r.desired:
		return p.result(false, fmt.Sprintf("%d/%d replicas updated", r.updated, r.desired), detail), nil
	case r.ready < r.desired:
		return p.result(false, fmt.Sprintf("%d/%d replicas ready", r.ready, r.desired), detail), nil
	}
	return p.result(true, "", detail), nil
}

func (p *K8sProbe) checkPod(ctx context.Context) (*Result, error) {
	pod, err := p.clientset.CoreV1().Pods(p.namespace).Get(ctx, p.object, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s probe %s: get pod %s: %w", p.name, p.object, err)
	}
	want := p.expected
	if want == "" {
		want = "Running"
	}
	phase := string(pod.Status.Phase)
	detail := map[string]any{"phase": phase, "expected_phase": want}
	return p.result(phase == want, "phase "+phase, detail), nil
}

// A missing ConfigMap or Secret is unhealthy rather than an error: it is
// what a failed restore looks like.
func (p *K8sProbe) checkData(ctx context.Context) (*Result, error) {
	keys, err := p.dataKeys(ctx)
	if apierrors.IsNotFound(err) {
		return p.result(false, "not found", map[string]any{"found": false}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("k8s probe %s: get %s %s: %w", p.name, p.kind, p.object, err)
	}
	detail := map[string]any{
		"found":        true,
		"key_count":    len(keys),
		"required_key": p.expected,
	}
	if p.expected != "" && !keys[p.expected] {
		return p.result(false, "missing key "+p.expected, detail), nil
	}
	return p.result(true, "", detail), nil
}

func (p *K8sProbe) dataKeys(ctx context.Context) (map[string]bool, error) {
	keys := make(map[string]bool)
	core := p.clientset.CoreV1()
	if p.kind == "configmap" {
		cm, err := core.ConfigMaps(p.namespace).Get(ctx, p.object, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		for k := range cm.Data {
			keys[k] = true
		}
		for k := range cm.BinaryData {
			keys[k] = true
		}
		return keys, nil
	}
	sec, err := core.Secrets(p.namespace).Get(ctx, p.object, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	for k := range sec.Data {
		keys[k] = true
	}
	for k := range sec.StringData {
		keys[k] = true
	}
	return keys, nil
}
