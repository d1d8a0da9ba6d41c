// Package k8sadapter implements the Kubernetes integration: the only
// adapter whose execute-action surface is core, because it is the one that
// acts against the live cluster.
package k8sadapter

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/ondutyhq/sentinel/internal/config"
)

// Client wraps client-go and the metrics clientset behind the narrow surface
// the adapter's fetch-context and execute-action vocabulary actually needs.
// Grounded on the teacher's UnifiedClient: one concrete type wrapping the
// generated clientsets, rather than re-declaring per-resource interfaces.
type Client struct {
	clientset kubernetes.Interface
	metrics   metricsv1beta1.Interface
	cfg       config.KubernetesConfig
}

// NewClient wraps an already-constructed clientset pair. metrics may be nil
// when no metrics-server is available; TopPods then returns
// senerrors.Unsupported.
func NewClient(clientset kubernetes.Interface, metrics metricsv1beta1.Interface, cfg config.KubernetesConfig) *Client {
	return &Client{clientset: clientset, metrics: metrics, cfg: cfg}
}

func (c *Client) ns(namespace string) string {
	if namespace != "" {
		return namespace
	}
	return c.cfg.Namespace
}

func (c *Client) GetDeployment(ctx context.Context, namespace, name string) (*appsv1.Deployment, error) {
	return c.clientset.AppsV1().Deployments(c.ns(namespace)).Get(ctx, name, metav1.GetOptions{})
}

func (c *Client) ListPods(ctx context.Context, namespace, labelSelector string) (*corev1.PodList, error) {
	return c.clientset.CoreV1().Pods(c.ns(namespace)).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
}

func (c *Client) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	return c.clientset.CoreV1().Pods(c.ns(namespace)).Get(ctx, name, metav1.GetOptions{})
}

func (c *Client) ListEvents(ctx context.Context, namespace string) (*corev1.EventList, error) {
	return c.clientset.CoreV1().Events(c.ns(namespace)).List(ctx, metav1.ListOptions{})
}

func (c *Client) ListNodes(ctx context.Context) (*corev1.NodeList, error) {
	return c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
}

// PodLogs returns the last tailLines of the pod's primary container log.
func (c *Client) PodLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error) {
	req := c.clientset.CoreV1().Pods(c.ns(namespace)).GetLogs(pod, &corev1.PodLogOptions{TailLines: &tailLines})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("stream pod logs: %w", err)
	}
	defer stream.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf), nil
}

// TopPods reports resource usage when a metrics clientset is wired.
func (c *Client) TopPods(ctx context.Context, namespace string) ([]MetricsSample, error) {
	if c.metrics == nil {
		return nil, ErrMetricsUnavailable
	}
	list, err := c.metrics.MetricsV1beta1().PodMetricses(c.ns(namespace)).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pod metrics: %w", err)
	}
	samples := make([]MetricsSample, 0, len(list.Items))
	for _, pm := range list.Items {
		var cpuMilli, memBytes int64
		for _, c := range pm.Containers {
			cpuMilli += c.Usage.Cpu().MilliValue()
			memBytes += c.Usage.Memory().Value()
		}
		samples = append(samples, MetricsSample{Pod: pm.Name, CPUMilli: cpuMilli, MemoryBytes: memBytes})
	}
	return samples, nil
}

// MetricsSample is one pod's aggregate CPU/memory usage.
type MetricsSample struct {
	Pod         string
	CPUMilli    int64
	MemoryBytes int64
}

func (c *Client) RestartPod(ctx context.Context, namespace, pod string) error {
	return c.clientset.CoreV1().Pods(c.ns(namespace)).Delete(ctx, pod, metav1.DeleteOptions{})
}

func (c *Client) ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
	_, err := c.clientset.AppsV1().Deployments(c.ns(namespace)).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
	return err
}

func (c *Client) PatchMemoryLimit(ctx context.Context, namespace, name, value string) error {
	return c.patchFirstContainerResource(ctx, namespace, name, "memory", "limits", value)
}

func (c *Client) PatchCPULimit(ctx context.Context, namespace, name, value string) error {
	return c.patchFirstContainerResource(ctx, namespace, name, "cpu", "limits", value)
}

func (c *Client) patchFirstContainerResource(ctx context.Context, namespace, name, resourceName, boundary, value string) error {
	dep, err := c.GetDeployment(ctx, namespace, name)
	if err != nil {
		return fmt.Errorf("get deployment for resource patch: %w", err)
	}
	if len(dep.Spec.Template.Spec.Containers) == 0 {
		return fmt.Errorf("deployment %s has no containers", name)
	}
	containerName := dep.Spec.Template.Spec.Containers[0].Name

	patch := []byte(fmt.Sprintf(
		`{"spec":{"template":{"spec":{"containers":[{"name":%q,"resources":{%q:{%q:%q}}}]}}}}`,
		containerName, boundary, resourceName, value,
	))
	_, err = c.clientset.AppsV1().Deployments(c.ns(namespace)).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	return err
}

func (c *Client) SetImage(ctx context.Context, namespace, name, image string) error {
	dep, err := c.GetDeployment(ctx, namespace, name)
	if err != nil {
		return fmt.Errorf("get deployment for image patch: %w", err)
	}
	if len(dep.Spec.Template.Spec.Containers) == 0 {
		return fmt.Errorf("deployment %s has no containers", name)
	}
	containerName := dep.Spec.Template.Spec.Containers[0].Name

	patch := []byte(fmt.Sprintf(
		`{"spec":{"template":{"spec":{"containers":[{"name":%q,"image":%q}]}}}}`,
		containerName, image,
	))
	_, err = c.clientset.AppsV1().Deployments(c.ns(namespace)).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	return err
}

// RollbackDeployment implements `rollout undo` by re-applying the
// deployment's previous ReplicaSet's pod template, mirroring what `kubectl
// rollout undo` does under the hood without shelling out to kubectl.
func (c *Client) RollbackDeployment(ctx context.Context, namespace, name string) error {
	rsList, err := c.clientset.AppsV1().ReplicaSets(c.ns(namespace)).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("list replicasets for rollback: %w", err)
	}

	var owned []*appsv1.ReplicaSet
	for i := range rsList.Items {
		rs := &rsList.Items[i]
		for _, owner := range rs.OwnerReferences {
			if owner.Kind == "Deployment" && owner.Name == name {
				owned = append(owned, rs)
			}
		}
	}
	if len(owned) < 2 {
		return fmt.Errorf("no previous revision found for deployment %s", name)
	}
	sort.Slice(owned, func(i, j int) bool {
		return revisionOf(owned[i]) > revisionOf(owned[j])
	})
	previous := owned[1]

	dep, err := c.GetDeployment(ctx, namespace, name)
	if err != nil {
		return fmt.Errorf("get deployment for rollback: %w", err)
	}
	dep.Spec.Template = previous.Spec.Template
	_, err = c.clientset.AppsV1().Deployments(c.ns(namespace)).Update(ctx, dep, metav1.UpdateOptions{})
	return err
}

func revisionOf(rs *appsv1.ReplicaSet) int {
	n, _ := strconv.Atoi(rs.Annotations["deployment.kubernetes.io/revision"])
	return n
}

// ApplyManifest is implemented for completeness of the execute-action
// vocabulary but is forbidden by default policy (spec.md §4.1) — the
// adapter classifies it forbidden before this method is ever reached.
func (c *Client) ApplyManifest(ctx context.Context, namespace string, dep *appsv1.Deployment) error {
	dep.Namespace = c.ns(namespace)
	if _, err := c.GetDeployment(ctx, namespace, dep.Name); err != nil {
		_, err := c.clientset.AppsV1().Deployments(dep.Namespace).Create(ctx, dep, metav1.CreateOptions{})
		return err
	}
	_, err := c.clientset.AppsV1().Deployments(dep.Namespace).Update(ctx, dep, metav1.UpdateOptions{})
	return err
}
