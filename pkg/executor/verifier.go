package executor

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/ondutyhq/sentinel/pkg/incident"
	"github.com/ondutyhq/sentinel/pkg/k8sadapter"
)

// verificationTimeout is the per-predicate poll deadline named in spec.md
// §4.6 for each action type.
var verificationTimeout = map[string]time.Duration{
	k8sadapter.VerbRestartPod:       90 * time.Second,
	k8sadapter.VerbScaleDeployment:  120 * time.Second,
	k8sadapter.VerbPatchMemoryLimit: 30 * time.Second,
	k8sadapter.VerbPatchCPULimit:    30 * time.Second,
}

const pollInterval = 2 * time.Second

// Verifier runs the post-execution predicate tied to an action type,
// polling the Kubernetes adapter's fetch-context surface (spec.md §4.6).
type Verifier struct {
	client *k8sadapter.Client
}

// NewVerifier builds a Verifier against the same Kubernetes client the
// adapter uses to execute commands.
func NewVerifier(client *k8sadapter.Client) *Verifier {
	return &Verifier{client: client}
}

// Verify polls until the predicate for cmd.Verb passes or its deadline
// elapses.
func (v *Verifier) Verify(ctx context.Context, cmd incident.CommandSpec) incident.VerificationResult {
	timeout, ok := verificationTimeout[cmd.Verb]
	if !ok {
		return incident.VerificationResult{Predicate: "no predicate defined for " + cmd.Verb, Passed: true}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	namespace, _ := cmd.Args["namespace"].(string)
	name, _ := cmd.Args["name"].(string)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		result := v.check(ctx, cmd.Verb, namespace, name, cmd.Args)
		result.LatencyMS = time.Since(start).Milliseconds()
		if result.Passed {
			return result
		}
		select {
		case <-ctx.Done():
			result.Predicate += " (timed out)"
			return result
		case <-ticker.C:
		}
	}
}

func (v *Verifier) check(ctx context.Context, verb, namespace, name string, args map[string]any) incident.VerificationResult {
	switch verb {
	case k8sadapter.VerbRestartPod:
		return v.checkPodRunning(ctx, namespace, name)
	case k8sadapter.VerbScaleDeployment:
		return v.checkReplicaCount(ctx, namespace, name, args)
	case k8sadapter.VerbPatchMemoryLimit:
		return v.checkMemoryLimit(ctx, namespace, name, args)
	case k8sadapter.VerbPatchCPULimit:
		return v.checkCPULimit(ctx, namespace, name, args)
	default:
		return incident.VerificationResult{Predicate: "no predicate for " + verb, Passed: true}
	}
}

// checkPodRunning polls for a new pod carrying the same workload label as
// the one deleted by restart_pod, now in Running phase.
func (v *Verifier) checkPodRunning(ctx context.Context, namespace, podName string) incident.VerificationResult {
	pods, err := v.client.ListPods(ctx, namespace, "")
	predicate := fmt.Sprintf("a pod replacing %s is Running", podName)
	if err != nil {
		return incident.VerificationResult{Predicate: predicate, Passed: false, Observed: map[string]any{"error": err.Error()}}
	}
	for _, p := range pods.Items {
		if p.Name != podName && p.Status.Phase == corev1.PodRunning {
			return incident.VerificationResult{Predicate: predicate, Passed: true, Observed: map[string]any{"replacement_pod": p.Name}}
		}
	}
	return incident.VerificationResult{Predicate: predicate, Passed: false}
}

func (v *Verifier) checkReplicaCount(ctx context.Context, namespace, name string, args map[string]any) incident.VerificationResult {
	want := int32Arg(args, "replicas")
	predicate := fmt.Sprintf("deployment %s readyReplicas == %d", name, want)

	dep, err := v.client.GetDeployment(ctx, namespace, name)
	if err != nil {
		return incident.VerificationResult{Predicate: predicate, Passed: false, Observed: map[string]any{"error": err.Error()}}
	}
	observed := dep.Status.ReadyReplicas
	return incident.VerificationResult{
		Predicate: predicate,
		Passed:    observed == want,
		Observed:  map[string]any{"ready_replicas": observed},
	}
}

func (v *Verifier) checkMemoryLimit(ctx context.Context, namespace, name string, args map[string]any) incident.VerificationResult {
	want, _ := args["value"].(string)
	predicate := fmt.Sprintf("deployment %s container[0].resources.limits.memory == %s", name, want)

	dep, err := v.client.GetDeployment(ctx, namespace, name)
	if err != nil {
		return incident.VerificationResult{Predicate: predicate, Passed: false, Observed: map[string]any{"error": err.Error()}}
	}
	if len(dep.Spec.Template.Spec.Containers) == 0 {
		return incident.VerificationResult{Predicate: predicate, Passed: false}
	}
	observed := dep.Spec.Template.Spec.Containers[0].Resources.Limits.Memory().String()
	return incident.VerificationResult{
		Predicate: predicate,
		Passed:    observed == want,
		Observed:  map[string]any{"memory_limit": observed},
	}
}

func (v *Verifier) checkCPULimit(ctx context.Context, namespace, name string, args map[string]any) incident.VerificationResult {
	want, _ := args["value"].(string)
	predicate := fmt.Sprintf("deployment %s container[0].resources.limits.cpu == %s", name, want)

	dep, err := v.client.GetDeployment(ctx, namespace, name)
	if err != nil {
		return incident.VerificationResult{Predicate: predicate, Passed: false, Observed: map[string]any{"error": err.Error()}}
	}
	if len(dep.Spec.Template.Spec.Containers) == 0 {
		return incident.VerificationResult{Predicate: predicate, Passed: false}
	}
	observed := dep.Spec.Template.Spec.Containers[0].Resources.Limits.Cpu().String()
	return incident.VerificationResult{
		Predicate: predicate,
		Passed:    observed == want,
		Observed:  map[string]any{"cpu_limit": observed},
	}
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
