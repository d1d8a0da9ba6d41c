package k8sadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
	"github.com/ondutyhq/sentinel/pkg/incident"
)

// Verb is the execute-action vocabulary recognized by this adapter
// (spec.md §4.1).
const (
	VerbRestartPod         = "restart_pod"
	VerbScaleDeployment    = "scale_deployment"
	VerbPatchMemoryLimit   = "patch_memory_limit"
	VerbPatchCPULimit      = "patch_cpu_limit"
	VerbRollbackDeployment = "rollback_deployment"
	VerbSetImage           = "set_image"
	VerbApplyManifest      = "apply_manifest"
	VerbDeleteNamespace    = "delete_namespace"
	VerbDeleteNode         = "delete_node"
	VerbDeletePV           = "delete_pv"
)

// permanentlyForbidden is never executed regardless of autonomy mode or
// operator override.
var permanentlyForbidden = map[string]bool{
	VerbDeleteNamespace: true,
	VerbDeleteNode:      true,
	VerbDeletePV:        true,
}

// forbiddenByDefault requires an explicit policy allowance to run; the risk
// planner, not this adapter, decides whether that allowance exists. The
// adapter still rejects it if asked to execute with Forbidden set.
var forbiddenByDefault = map[string]bool{
	VerbApplyManifest: true,
}

// Adapter is the Kubernetes integration.Adapter implementation: the only
// adapter whose execute-action surface mutates the live cluster.
type Adapter struct {
	client                       *Client
	destructiveOperationsEnabled func() bool
}

// NewAdapter builds a Kubernetes adapter. destructiveOperationsEnabled is a
// callback (rather than a captured bool) so the adapter always consults the
// live AutonomyConfig snapshot, per spec.md §4.1's "all mutating operations
// require destructive_operations_enabled=true" rule.
func NewAdapter(client *Client, destructiveOperationsEnabled func() bool) *Adapter {
	return &Adapter{client: client, destructiveOperationsEnabled: destructiveOperationsEnabled}
}

func (a *Adapter) Name() string { return "kubernetes" }

func (a *Adapter) Connect(ctx context.Context) error { return nil }

func (a *Adapter) Health(ctx context.Context) error {
	_, err := a.client.ListNodes(ctx)
	if err != nil {
		return senerrors.Transient("health", a.Name(), err)
	}
	return nil
}

// IsForbidden reports whether verb can never execute (permanently) or
// requires an explicit policy allowance (forbidden by default).
func IsForbidden(verb string) bool {
	return permanentlyForbidden[verb] || forbiddenByDefault[verb]
}

// IsPermanentlyForbidden reports whether verb must never execute regardless
// of mode, operator override, or policy allowance.
func IsPermanentlyForbidden(verb string) bool {
	return permanentlyForbidden[verb]
}

// ValidateImage rejects an image reference that go-containerregistry cannot
// parse as a valid tag or digest reference, before it ever reaches
// SetImage. Grounded on spec.md §4.1's "apply_manifest forbidden by
// default" sibling requirement that execute_action never runs a malformed
// image reference.
func ValidateImage(image string) error {
	if _, err := name.ParseReference(image); err != nil {
		return fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func int32Arg(args map[string]any, key string) int32 {
	switch v := args[key].(type) {
	case int32:
		return v
	case int:
		return int32(v)
	case float64:
		return int32(v)
	}
	return 0
}

func (a *Adapter) FetchContext(ctx context.Context, inc incident.Incident) (incident.ContextBundle, error) {
	start := time.Now()
	namespace := inc.Alert.Namespace

	data := map[string]any{}

	pods, err := a.client.ListPods(ctx, namespace, "")
	if err != nil {
		return incident.ContextBundle{}, senerrors.Transient("fetch_context", a.Name(), err)
	}
	data["pods"] = summarizePods(pods)

	if inc.Alert.Resource != "" {
		if dep, err := a.client.GetDeployment(ctx, namespace, inc.Alert.Resource); err == nil {
			data["deployment"] = summarizeDeployment(dep)
		}
	}

	events, err := a.client.ListEvents(ctx, namespace)
	if err == nil {
		data["recent_event_count"] = len(events.Items)
	}

	if samples, err := a.client.TopPods(ctx, namespace); err == nil {
		data["top_pods"] = samples
	}

	return incident.ContextBundle{
		AdapterName: a.Name(),
		OK:          true,
		Data:        data,
		DurationMS:  time.Since(start).Milliseconds(),
	}, nil
}

func summarizePods(pods *corev1.PodList) []map[string]any {
	out := make([]map[string]any, 0, len(pods.Items))
	for _, p := range pods.Items {
		restarts := int32(0)
		for _, cs := range p.Status.ContainerStatuses {
			restarts += cs.RestartCount
		}
		out = append(out, map[string]any{
			"name":     p.Name,
			"phase":    string(p.Status.Phase),
			"restarts": restarts,
		})
	}
	return out
}

func summarizeDeployment(dep *appsv1.Deployment) map[string]any {
	limits := map[string]any{}
	if len(dep.Spec.Template.Spec.Containers) > 0 {
		res := dep.Spec.Template.Spec.Containers[0].Resources.Limits
		limits["memory"] = res.Memory().String()
		limits["cpu"] = res.Cpu().String()
	}
	return map[string]any{
		"name":           dep.Name,
		"ready_replicas": dep.Status.ReadyReplicas,
		"replicas":       dep.Status.Replicas,
		"limits":         limits,
	}
}

func (a *Adapter) ExecuteAction(ctx context.Context, cmd incident.CommandSpec) (incident.ExecutionRecord, error) {
	started := time.Now()
	rec := incident.ExecutionRecord{Command: cmd, StartedAt: started}

	if IsPermanentlyForbidden(cmd.Verb) {
		rec.Status = incident.StatusRejected
		rec.Reason = incident.ReasonPolicyForbidden
		rec.FinishedAt = time.Now()
		return rec, senerrors.Forbidden("execute_action", a.Name(), fmt.Errorf("verb %q is permanently forbidden", cmd.Verb))
	}
	if cmd.Forbidden {
		rec.Status = incident.StatusSkipped
		rec.Reason = incident.ReasonPolicyForbidden
		rec.FinishedAt = time.Now()
		return rec, nil
	}

	mutating := cmd.Verb != "get" && cmd.Verb != "describe" && cmd.Verb != "logs" && cmd.Verb != "top"
	dryRun := cmd.DryRun || (mutating && !a.destructiveOperationsEnabled())

	if dryRun {
		rec.Status = incident.StatusSkipped
		rec.Reason = incident.ReasonDryRun
		rec.FinishedAt = time.Now()
		return rec, nil
	}

	namespace := stringArg(cmd.Args, "namespace")
	target := stringArg(cmd.Args, "name")

	var err error
	switch cmd.Verb {
	case VerbRestartPod:
		err = a.client.RestartPod(ctx, namespace, target)
	case VerbScaleDeployment:
		err = a.client.ScaleDeployment(ctx, namespace, target, int32Arg(cmd.Args, "replicas"))
	case VerbPatchMemoryLimit:
		err = a.client.PatchMemoryLimit(ctx, namespace, target, stringArg(cmd.Args, "value"))
	case VerbPatchCPULimit:
		err = a.client.PatchCPULimit(ctx, namespace, target, stringArg(cmd.Args, "value"))
	case VerbRollbackDeployment:
		err = a.client.RollbackDeployment(ctx, namespace, target)
	case VerbSetImage:
		image := stringArg(cmd.Args, "image")
		if verr := ValidateImage(image); verr != nil {
			rec.Status = incident.StatusRejected
			rec.Reason = incident.ReasonPolicyForbidden
			rec.FinishedAt = time.Now()
			return rec, senerrors.Semantic("execute_action", a.Name(), verr)
		}
		err = a.client.SetImage(ctx, namespace, target, image)
	default:
		rec.Status = incident.StatusSkipped
		rec.FinishedAt = time.Now()
		return rec, senerrors.Unsupported("execute_action", a.Name(), fmt.Errorf("unsupported verb %q", cmd.Verb))
	}

	rec.FinishedAt = time.Now()
	if err != nil {
		rec.Status = incident.StatusFailed
		rec.Stderr = err.Error()
		return rec, senerrors.Transient("execute_action", a.Name(), err)
	}
	rec.Status = incident.StatusSucceeded
	return rec, nil
}
