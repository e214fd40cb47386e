package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/drorchestrator/backend-go/internal/domain"
)

func int32Ptr(i int32) *int32 { return &i }

func meta(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Name: name, Namespace: "shop"}
}

func newShopProbe(objs []runtime.Object, kind, name, expected string) *K8sProbe {
	return NewK8sProbe(K8sProbeConfig{
		Name:          kind + "-" + name,
		Target:        "storefront",
		Clientset:     fake.NewSimpleClientset(objs...),
		Namespace:     "shop",
		ResourceKind:  kind,
		ResourceName:  name,
		ExpectedValue: expected,
	})
}

func TestK8sProbeWorkloads(t *testing.T) {
	tests := []struct {
		name     string
		obj      runtime.Object
		kind     string
		expected string
		healthy  bool
		failure  string
	}{
		{
			name: "deployment rolled out",
			obj: &appsv1.Deployment{
				ObjectMeta: meta("web"),
				Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(3)},
				Status:     appsv1.DeploymentStatus{ReadyReplicas: 3, UpdatedReplicas: 3},
			},
			kind:    "deployment",
			healthy: true,
		},
		{
			name: "deployment still rolling",
			obj: &appsv1.Deployment{
				ObjectMeta: meta("web"),
				Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(3)},
				Status:     appsv1.DeploymentStatus{ReadyReplicas: 3, UpdatedReplicas: 1},
			},
			kind:    "deployment",
			failure: "1/3 replicas updated",
		},
		{
			name: "deployment not ready",
			obj: &appsv1.Deployment{
				ObjectMeta: meta("web"),
				Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(3)},
				Status:     appsv1.DeploymentStatus{ReadyReplicas: 2, UpdatedReplicas: 3},
			},
			kind:    "deployment",
			failure: "2/3 replicas ready",
		},
		{
			name: "deployment defaults to one replica",
			obj: &appsv1.Deployment{
				ObjectMeta: meta("web"),
				Status:     appsv1.DeploymentStatus{ReadyReplicas: 1, UpdatedReplicas: 1},
			},
			kind:    "deployment",
			healthy: true,
		},
		{
			name: "statefulset ready",
			obj: &appsv1.StatefulSet{
				ObjectMeta: meta("web"),
				Spec:       appsv1.StatefulSetSpec{Replicas: int32Ptr(2)},
				Status:     appsv1.StatefulSetStatus{ReadyReplicas: 2, UpdatedReplicas: 2},
			},
			kind:    "statefulset",
			healthy: true,
		},
		{
			name: "daemonset partially scheduled",
			obj: &appsv1.DaemonSet{
				ObjectMeta: meta("web"),
				Status: appsv1.DaemonSetStatus{
					DesiredNumberScheduled: 4,
					NumberReady:            3,
					UpdatedNumberScheduled: 4,
				},
			},
			kind:    "daemonset",
			failure: "3/4 replicas ready",
		},
		{
			name:    "pod running",
			obj:     &corev1.Pod{ObjectMeta: meta("web"), Status: corev1.PodStatus{Phase: corev1.PodRunning}},
			kind:    "pod",
			healthy: true,
		},
		{
			name:     "pod with expected phase",
			obj:      &corev1.Pod{ObjectMeta: meta("web"), Status: corev1.PodStatus{Phase: corev1.PodSucceeded}},
			kind:     "pod",
			expected: "Succeeded",
			healthy:  true,
		},
		{
			name:    "pod failed",
			obj:     &corev1.Pod{ObjectMeta: meta("web"), Status: corev1.PodStatus{Phase: corev1.PodFailed}},
			kind:    "pod",
			failure: "phase Failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newShopProbe([]runtime.Object{tt.obj}, tt.kind, "web", tt.expected)

			res, err := p.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.healthy, res.Healthy)
			assert.Equal(t, domain.ProbeTypeK8s, res.Kind)
			assert.Equal(t, "storefront", res.Target)
			assert.Equal(t, "shop", res.Detail["namespace"])
			assert.Equal(t, "web", res.Detail[tt.kind])
			if tt.healthy {
				assert.Empty(t, res.Failure())
			} else {
				assert.Contains(t, res.Failure(), tt.failure)
				assert.Contains(t, res.Failure(), tt.kind+" shop/web")
			}
		})
	}
}

func TestK8sProbeData(t *testing.T) {
	objs := []runtime.Object{
		&corev1.ConfigMap{
			ObjectMeta: meta("app-config"),
			Data:       map[string]string{"settings.yaml": "x: 1"},
			BinaryData: map[string][]byte{"logo.png": {0x89}},
		},
		&corev1.Secret{
			ObjectMeta: meta("db-creds"),
			Data:       map[string][]byte{"password": []byte("s3cret")},
		},
	}

	tests := []struct {
		name     string
		kind     string
		object   string
		key      string
		healthy  bool
		keyCount any
	}{
		{"configmap with key", "configmap", "app-config", "settings.yaml", true, 2},
		{"configmap binary key", "configmap", "app-config", "logo.png", true, 2},
		{"configmap without requirement", "configmap", "app-config", "", true, 2},
		{"configmap missing key", "configmap", "app-config", "other.yaml", false, 2},
		{"configmap missing", "configmap", "nope", "", false, nil},
		{"secret with key", "secret", "db-creds", "password", true, 1},
		{"secret missing key", "secret", "db-creds", "username", false, 1},
		{"secret missing", "secret", "nope", "password", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newShopProbe(objs, tt.kind, tt.object, tt.key)

			res, err := p.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.healthy, res.Healthy)
			assert.Equal(t, tt.keyCount, res.Detail["key_count"])
			assert.Equal(t, tt.keyCount != nil, res.Detail["found"])
		})
	}
}

func TestK8sProbeErrors(t *testing.T) {
	tests := []struct {
		name    string
		probe   *K8sProbe
		wantErr string
	}{
		{
			name:    "workload not found",
			probe:   newShopProbe(nil, "deployment", "web", ""),
			wantErr: "get deployment web",
		},
		{
			name:    "pod not found",
			probe:   newShopProbe(nil, "pod", "web", ""),
			wantErr: "get pod web",
		},
		{
			name:    "unsupported kind",
			probe:   newShopProbe(nil, "cronjob", "nightly", ""),
			wantErr: `unsupported resource kind "cronjob"`,
		},
		{
			name:    "no client",
			probe:   NewK8sProbe(K8sProbeConfig{Name: "orphan", ResourceKind: "pod", ResourceName: "x"}),
			wantErr: "no kubernetes client configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.probe.Check(context.Background())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestK8sProbeDefaultNamespace(t *testing.T) {
	p := NewK8sProbe(K8sProbeConfig{Name: "web", ResourceKind: "deployment", ResourceName: "web"})

	assert.Equal(t, "web", p.Name())
	assert.Equal(t, domain.ProbeTypeK8s, p.Kind())
	assert.Equal(t, "default", p.namespace)
}
