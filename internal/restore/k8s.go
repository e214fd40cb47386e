package restore

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/probe"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	"k8s.io/kubectl/pkg/scheme"
)

const restartedAtAnnotation = "kubectl.kubernetes.io/restartedAt"

// K8sRestorer restores applications, configuration and secrets in a
// Kubernetes cluster. Locations are "namespace/name".
type K8sRestorer struct {
	clientset  kubernetes.Interface
	restConfig *rest.Config
	now        func() time.Time
}

// NewK8sRestorer creates a K8sRestorer with in-cluster or kubeconfig auth
func NewK8sRestorer(kubeconfig string) (*K8sRestorer, error) {
	var cfg *rest.Config
	var err error

	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			cfg, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("k8s config: %w", err)
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8s clientset: %w", err)
	}

	return NewK8sRestorerForClient(cs, cfg), nil
}

// NewK8sRestorerForClient wraps an existing clientset. restConfig may be nil,
// in which case Exec is unavailable.
func NewK8sRestorerForClient(cs kubernetes.Interface, restConfig *rest.Config) *K8sRestorer {
	return &K8sRestorer{clientset: cs, restConfig: restConfig, now: time.Now}
}

// Clientset exposes the underlying kubernetes.Interface for probes
func (r *K8sRestorer) Clientset() kubernetes.Interface {
	return r.clientset
}

func (r *K8sRestorer) Restore(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error) {
	switch comp.Type {
	case domain.ComponentApplication:
		return r.restoreWorkload(ctx, comp)
	case domain.ComponentConfiguration:
		return r.restoreConfigMap(ctx, comp)
	case domain.ComponentSecrets:
		return r.restoreSecret(ctx, comp)
	default:
		return nil, fmt.Errorf("%w: kubernetes cannot restore %q", domain.ErrUnsupportedComponentType, comp.Type)
	}
}

func (r *K8sRestorer) EstimateResources(comp domain.RecoveryComponent) domain.ResourceRequirements {
	return DefaultEstimate(comp)
}

// workloadState is the part of a deployment or statefulset a restore changes
type workloadState struct {
	replicas int32
	image    string
}

func (r *K8sRestorer) restoreWorkload(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error) {
	ns, name, err := splitLocation(comp.TargetLocation)
	if err != nil {
		return nil, err
	}
	kind := strings.ToLower(probe.StringProp(comp.Parameters, "kind"))
	if kind == "" {
		kind = "deployment"
	}
	container := probe.StringProp(comp.Parameters, "container")

	desired := workloadState{
		replicas: int32(probe.IntProp(comp.Parameters, "replicas", -1)),
		image:    probe.StringProp(comp.Parameters, "image"),
	}
	if desired.image == "" {
		desired.image = comp.BackupLocation
	}

	prev, err := r.applyWorkload(ctx, kind, ns, name, container, desired, r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	log.Printf("Restored %s %s/%s (replicas=%d image=%q)", kind, ns, name, desired.replicas, desired.image)

	rollback := func() (map[string]any, error) {
		if _, err := r.applyWorkload(context.Background(), kind, ns, name, container, prev, ""); err != nil {
			return nil, err
		}
		log.Printf("Rollback: reverted %s %s/%s to replicas=%d image=%q", kind, ns, name, prev.replicas, prev.image)
		return map[string]any{"replicas": prev.replicas, "image": prev.image}, nil
	}

	return &Outcome{
		Success:          true,
		BytesTransferred: comp.SizeBytes,
		Detail: map[string]any{
			"action":            "restore_" + kind,
			"namespace":         ns,
			"name":              name,
			"previous_replicas": prev.replicas,
			"previous_image":    prev.image,
		},
		Rollback:            rollback,
		RollbackDescription: fmt.Sprintf("revert %s %s/%s", kind, ns, name),
	}, nil
}

// applyWorkload writes desired onto the workload and returns what it replaced.
// A negative replica count or empty image leaves that field alone.
func (r *K8sRestorer) applyWorkload(ctx context.Context, kind, ns, name, container string, desired workloadState, restartedAt string) (workloadState, error) {
	var prev workloadState

	switch kind {
	case "deployment":
		dep, err := r.clientset.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return prev, fmt.Errorf("get deployment %s/%s: %w", ns, name, err)
		}
		if dep.Spec.Replicas != nil {
			prev.replicas = *dep.Spec.Replicas
		}
		if desired.replicas >= 0 {
			replicas := desired.replicas
			dep.Spec.Replicas = &replicas
		}
		prev.image = setImage(&dep.Spec.Template.Spec, container, desired.image)
		markRestarted(&dep.Spec.Template.ObjectMeta, restartedAt)
		if _, err := r.clientset.AppsV1().Deployments(ns).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
			return prev, fmt.Errorf("update deployment %s/%s: %w", ns, name, err)
		}
	case "statefulset":
		sts, err := r.clientset.AppsV1().StatefulSets(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return prev, fmt.Errorf("get statefulset %s/%s: %w", ns, name, err)
		}
		if sts.Spec.Replicas != nil {
			prev.replicas = *sts.Spec.Replicas
		}
		if desired.replicas >= 0 {
			replicas := desired.replicas
			sts.Spec.Replicas = &replicas
		}
		prev.image = setImage(&sts.Spec.Template.Spec, container, desired.image)
		markRestarted(&sts.Spec.Template.ObjectMeta, restartedAt)
		if _, err := r.clientset.AppsV1().StatefulSets(ns).Update(ctx, sts, metav1.UpdateOptions{}); err != nil {
			return prev, fmt.Errorf("update statefulset %s/%s: %w", ns, name, err)
		}
	default:
		return prev, fmt.Errorf("%w: workload kind %q", domain.ErrUnsupportedComponentType, kind)
	}
	return prev, nil
}

// setImage swaps the named (or first) container's image and returns the old one
func setImage(spec *corev1.PodSpec, container, image string) string {
	for i := range spec.Containers {
		c := &spec.Containers[i]
		if container != "" && c.Name != container {
			continue
		}
		old := c.Image
		if image != "" {
			c.Image = image
		}
		return old
	}
	return ""
}

func markRestarted(meta *metav1.ObjectMeta, at string) {
	if at == "" {
		return
	}
	if meta.Annotations == nil {
		meta.Annotations = map[string]string{}
	}
	meta.Annotations[restartedAtAnnotation] = at
}

// restoreData resolves the payload for a configmap or secret: the "data"
// parameter when present, otherwise the contents of BackupLocation.
func restoreData(comp domain.RecoveryComponent, fromBackup func(ns, name string) (map[string]string, error)) (map[string]string, error) {
	if data := probe.StringMapProp(comp.Parameters, "data"); len(data) > 0 {
		return data, nil
	}
	if comp.BackupLocation == "" {
		return nil, fmt.Errorf("%w: %s has no data and no backup location", domain.ErrComponentRestore, comp.ID)
	}
	ns, name, err := splitLocation(comp.BackupLocation)
	if err != nil {
		return nil, err
	}
	return fromBackup(ns, name)
}

func dataSize(data map[string]string) int64 {
	var n int64
	for k, v := range data {
		n += int64(len(k) + len(v))
	}
	return n
}

func (r *K8sRestorer) restoreConfigMap(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error) {
	ns, name, err := splitLocation(comp.TargetLocation)
	if err != nil {
		return nil, err
	}
	client := r.clientset.CoreV1().ConfigMaps(ns)

	data, err := restoreData(comp, func(bns, bname string) (map[string]string, error) {
		cm, err := r.clientset.CoreV1().ConfigMaps(bns).Get(ctx, bname, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("get backup configmap %s/%s: %w", bns, bname, err)
		}
		return cm.Data, nil
	})
	if err != nil {
		return nil, err
	}

	var rollback domain.RollbackFunc
	existing, err := client.Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		cm := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns}, Data: data}
		if _, err := client.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("create configmap %s/%s: %w", ns, name, err)
		}
		rollback = func() (map[string]any, error) {
			if err := client.Delete(context.Background(), name, metav1.DeleteOptions{}); err != nil {
				return nil, fmt.Errorf("delete configmap %s/%s: %w", ns, name, err)
			}
			log.Printf("Rollback: deleted configmap %s/%s", ns, name)
			return map[string]any{"deleted": ns + "/" + name}, nil
		}
	case err != nil:
		return nil, fmt.Errorf("get configmap %s/%s: %w", ns, name, err)
	default:
		previous := existing.Data
		existing.Data = data
		if _, err := client.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return nil, fmt.Errorf("update configmap %s/%s: %w", ns, name, err)
		}
		rollback = func() (map[string]any, error) {
			cm, err := client.Get(context.Background(), name, metav1.GetOptions{})
			if err != nil {
				return nil, fmt.Errorf("get configmap %s/%s: %w", ns, name, err)
			}
			cm.Data = previous
			if _, err := client.Update(context.Background(), cm, metav1.UpdateOptions{}); err != nil {
				return nil, fmt.Errorf("revert configmap %s/%s: %w", ns, name, err)
			}
			log.Printf("Rollback: reverted configmap %s/%s", ns, name)
			return map[string]any{"reverted": ns + "/" + name}, nil
		}
	}
	log.Printf("Restored configmap %s/%s (%d keys)", ns, name, len(data))

	return &Outcome{
		Success:             true,
		BytesTransferred:    dataSize(data),
		Detail:              map[string]any{"action": "restore_configmap", "namespace": ns, "name": name, "keys": len(data)},
		Rollback:            rollback,
		RollbackDescription: fmt.Sprintf("revert configmap %s/%s", ns, name),
	}, nil
}

func (r *K8sRestorer) restoreSecret(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error) {
	ns, name, err := splitLocation(comp.TargetLocation)
	if err != nil {
		return nil, err
	}
	client := r.clientset.CoreV1().Secrets(ns)

	data, err := restoreData(comp, func(bns, bname string) (map[string]string, error) {
		s, err := r.clientset.CoreV1().Secrets(bns).Get(ctx, bname, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("get backup secret %s/%s: %w", bns, bname, err)
		}
		out := make(map[string]string, len(s.Data))
		for k, v := range s.Data {
			out[k] = string(v)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	payload := make(map[string][]byte, len(data))
	for k, v := range data {
		payload[k] = []byte(v)
	}

	var rollback domain.RollbackFunc
	existing, err := client.Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		s := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns}, Data: payload}
		if _, err := client.Create(ctx, s, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("create secret %s/%s: %w", ns, name, err)
		}
		rollback = func() (map[string]any, error) {
			if err := client.Delete(context.Background(), name, metav1.DeleteOptions{}); err != nil {
				return nil, fmt.Errorf("delete secret %s/%s: %w", ns, name, err)
			}
			log.Printf("Rollback: deleted secret %s/%s", ns, name)
			return map[string]any{"deleted": ns + "/" + name}, nil
		}
	case err != nil:
		return nil, fmt.Errorf("get secret %s/%s: %w", ns, name, err)
	default:
		previous := existing.Data
		existing.Data = payload
		if _, err := client.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return nil, fmt.Errorf("update secret %s/%s: %w", ns, name, err)
		}
		rollback = func() (map[string]any, error) {
			s, err := client.Get(context.Background(), name, metav1.GetOptions{})
			if err != nil {
				return nil, fmt.Errorf("get secret %s/%s: %w", ns, name, err)
			}
			s.Data = previous
			if _, err := client.Update(context.Background(), s, metav1.UpdateOptions{}); err != nil {
				return nil, fmt.Errorf("revert secret %s/%s: %w", ns, name, err)
			}
			log.Printf("Rollback: reverted secret %s/%s", ns, name)
			return map[string]any{"reverted": ns + "/" + name}, nil
		}
	}
	// values are never logged
	log.Printf("Restored secret %s/%s (%d keys)", ns, name, len(payload))

	return &Outcome{
		Success:             true,
		BytesTransferred:    dataSize(data),
		Detail:              map[string]any{"action": "restore_secret", "namespace": ns, "name": name, "keys": len(payload)},
		Rollback:            rollback,
		RollbackDescription: fmt.Sprintf("revert secret %s/%s", ns, name),
	}, nil
}

// Prestage records the target's current shape before it is overwritten
func (r *K8sRestorer) Prestage(ctx context.Context, comp domain.RecoveryComponent) (map[string]any, error) {
	ns, name, err := splitLocation(comp.TargetLocation)
	if err != nil {
		return nil, err
	}

	switch comp.Type {
	case domain.ComponentApplication:
		kind := strings.ToLower(probe.StringProp(comp.Parameters, "kind"))
		if kind == "statefulset" {
			sts, err := r.clientset.AppsV1().StatefulSets(ns).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return nil, fmt.Errorf("get statefulset %s/%s: %w", ns, name, err)
			}
			return map[string]any{"kind": kind, "replicas": derefReplicas(sts.Spec.Replicas), "ready": sts.Status.ReadyReplicas}, nil
		}
		dep, err := r.clientset.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("get deployment %s/%s: %w", ns, name, err)
		}
		return map[string]any{"kind": "deployment", "replicas": derefReplicas(dep.Spec.Replicas), "ready": dep.Status.ReadyReplicas}, nil
	case domain.ComponentConfiguration:
		cm, err := r.clientset.CoreV1().ConfigMaps(ns).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return map[string]any{"exists": false}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"exists": true, "keys": sortedKeys(cm.Data)}, nil
	case domain.ComponentSecrets:
		s, err := r.clientset.CoreV1().Secrets(ns).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return map[string]any{"exists": false}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"exists": true, "key_count": len(s.Data)}, nil
	}
	return nil, nil
}

// Exec runs command in a pod and returns its stdout
func (r *K8sRestorer) Exec(ctx context.Context, namespace, podName string, command []string) (string, error) {
	if r.restConfig == nil {
		return "", fmt.Errorf("exec in %s/%s: no rest config", namespace, podName)
	}

	req := r.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(podName).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Command: command,
			Stdout:  true,
			Stderr:  true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(r.restConfig, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("exec setup for %s: %w", podName, err)
	}

	var stdout, stderr strings.Builder
	if err := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	}); err != nil {
		return stdout.String(), fmt.Errorf("exec in %s: %w: %s", podName, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func splitLocation(loc string) (namespace, name string, err error) {
	if loc == "" {
		return "", "", fmt.Errorf("%w: empty kubernetes location", domain.ErrComponentRestore)
	}
	ns, name, ok := strings.Cut(loc, "/")
	if !ok {
		return "default", loc, nil
	}
	if ns == "" || name == "" {
		return "", "", fmt.Errorf("%w: malformed kubernetes location %q", domain.ErrComponentRestore, loc)
	}
	return ns, name, nil
}

func derefReplicas(p *int32) int32 {
	if p == nil {
		return 1
	}
	return *p
}
