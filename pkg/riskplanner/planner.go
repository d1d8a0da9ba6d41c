package riskplanner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

var placeholderPattern = regexp.MustCompile(`^<(.+)>$`)

// verbTargetSystem maps a recognized action_type to the adapter that
// executes it. Every verb recognized by analysis.Parse targets Kubernetes
// today; the mapping is explicit so adding a second mutating adapter
// doesn't require touching the expansion logic below.
var verbTargetSystem = map[string]string{
	"restart_pod":         "kubernetes",
	"scale_deployment":    "kubernetes",
	"patch_memory_limit":  "kubernetes",
	"patch_cpu_limit":     "kubernetes",
	"rollback_deployment": "kubernetes",
	"set_image":           "kubernetes",
	"apply_manifest":      "kubernetes",
}

var safeForAmbiguousFanout = map[incident.RiskLevel]bool{
	incident.RiskLow:    true,
	incident.RiskMedium: true,
}

// Planner expands ResolutionActions into concrete CommandSpecs, resolving
// placeholder identifiers against the observed Kubernetes context and
// recomputing risk via Policy (spec.md §4.4).
type Planner struct {
	policy                *Policy
	applyManifestAllowed  bool
}

// NewPlanner wires a compiled Policy. applyManifestAllowed reflects a
// standing operator override of the apply_manifest forbidden-by-default
// rule; it is false unless explicitly configured.
func NewPlanner(policy *Policy, applyManifestAllowed bool) *Planner {
	return &Planner{policy: policy, applyManifestAllowed: applyManifestAllowed}
}

// Expand turns one ResolutionAction into zero or more CommandSpecs.
// Placeholders like <deployment-name> are resolved against candidates
// (problematic deployment names derived from the context bundle); if
// unique, the placeholder is substituted, if ambiguous one CommandSpec is
// emitted per candidate only for low/medium-risk actions, otherwise the
// action is skipped with reason unresolved_target.
func (p *Planner) Expand(ctx context.Context, action incident.ResolutionAction, candidates []string) ([]incident.CommandSpec, string, error) {
	resolved, ambiguous, err := resolvePlaceholders(action.Params, candidates)
	if err != nil {
		return nil, "", err
	}

	if len(resolved) == 0 {
		return nil, incident.ReasonUnresolvedTarget, nil
	}
	if ambiguous && !safeForAmbiguousFanout[action.RiskLevel] {
		return nil, incident.ReasonUnresolvedTarget, nil
	}

	specs := make([]incident.CommandSpec, 0, len(resolved))
	for _, params := range resolved {
		spec := incident.CommandSpec{
			TargetSystem: verbTargetSystem[action.ActionType],
			Verb:         action.ActionType,
			Args:         params,
		}

		clusterScoped := spec.TargetSystem == "" // unresolvable-adapter verbs treated conservatively
		risk, err := p.policy.Classify(ctx, spec, clusterScoped, p.applyManifestAllowed)
		if err != nil {
			return nil, "", fmt.Errorf("classify risk: %w", err)
		}
		forbidden, err := p.policy.IsForbidden(ctx, spec, clusterScoped, p.applyManifestAllowed)
		if err != nil {
			return nil, "", fmt.Errorf("classify forbidden: %w", err)
		}

		spec.ClassifiedRisk = incident.MaxRisk(action.RiskLevel, risk)
		spec.Forbidden = forbidden
		specs = append(specs, spec)
	}

	return specs, "", nil
}

// resolvePlaceholders substitutes any "<...>" value in params against
// candidates. Returns one params map per disambiguated candidate when
// ambiguous, or the single resolved map otherwise. An empty return means
// resolution failed entirely (no candidates).
func resolvePlaceholders(params map[string]any, candidates []string) ([]map[string]any, bool, error) {
	var placeholderKey string
	for k, v := range params {
		if s, ok := v.(string); ok && placeholderPattern.MatchString(s) {
			placeholderKey = k
			break
		}
	}
	if placeholderKey == "" {
		clone := make(map[string]any, len(params))
		for k, v := range params {
			clone[k] = v
		}
		return []map[string]any{clone}, false, nil
	}

	if len(candidates) == 0 {
		return nil, false, nil
	}

	out := make([]map[string]any, 0, len(candidates))
	for _, candidate := range candidates {
		clone := make(map[string]any, len(params))
		for k, v := range params {
			clone[k] = v
		}
		clone[placeholderKey] = candidate
		out = append(out, clone)
	}
	return out, len(candidates) > 1, nil
}
