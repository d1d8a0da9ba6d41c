package riskplanner

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

//go:embed policy.rego
var defaultPolicySource string

// Policy evaluates the risk/forbidden Rego rules against a CommandSpec
// candidate. Grounded on the teacher's NewPriorityEngineWithRego pattern:
// an embedded-policy engine prepared once at startup and queried per
// decision, rather than shelling out to the opa CLI.
type Policy struct {
	classifyRisk rego.PreparedEvalQuery
	forbidden    rego.PreparedEvalQuery
}

// NewPolicy compiles source (pass "" to use the built-in default policy).
func NewPolicy(ctx context.Context, source string) (*Policy, error) {
	if source == "" {
		source = defaultPolicySource
	}

	classifyRisk, err := rego.New(
		rego.Query("data.sentinel.riskplanner.classify_risk"),
		rego.Module("policy.rego", source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare classify_risk query: %w", err)
	}

	forbidden, err := rego.New(
		rego.Query("data.sentinel.riskplanner.forbidden"),
		rego.Module("policy.rego", source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare forbidden query: %w", err)
	}

	return &Policy{classifyRisk: classifyRisk, forbidden: forbidden}, nil
}

// policyInput mirrors the shape policy.rego's `input` document expects.
type policyInput struct {
	Verb             string         `json:"verb"`
	Args             map[string]any `json:"args"`
	ClusterScoped    bool           `json:"cluster_scoped"`
	ApplyManifestOK  bool           `json:"apply_manifest_allowed"`
}

// Classify returns the risk tier Rego computes for cmd.
func (p *Policy) Classify(ctx context.Context, cmd incident.CommandSpec, clusterScoped, applyManifestAllowed bool) (incident.RiskLevel, error) {
	in := toPolicyInput(cmd, clusterScoped, applyManifestAllowed)
	results, err := p.classifyRisk.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return "", fmt.Errorf("evaluate classify_risk: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return incident.RiskLow, nil
	}
	risk, _ := results[0].Expressions[0].Value.(string)
	return incident.RiskLevel(risk), nil
}

// IsForbidden returns true when Rego's forbidden rule matches cmd.
func (p *Policy) IsForbidden(ctx context.Context, cmd incident.CommandSpec, clusterScoped, applyManifestAllowed bool) (bool, error) {
	in := toPolicyInput(cmd, clusterScoped, applyManifestAllowed)
	results, err := p.forbidden.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return false, fmt.Errorf("evaluate forbidden: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	forbidden, _ := results[0].Expressions[0].Value.(bool)
	return forbidden, nil
}

func toPolicyInput(cmd incident.CommandSpec, clusterScoped, applyManifestAllowed bool) policyInput {
	args := make(map[string]any, len(cmd.Args)+1)
	for k, v := range cmd.Args {
		args[k] = v
	}
	if _, ok := args["namespace"]; !ok {
		args["namespace"] = ""
	}
	if _, ok := args["resource"]; !ok {
		args["resource"] = ""
	}
	return policyInput{
		Verb:            cmd.Verb,
		Args:            args,
		ClusterScoped:   clusterScoped,
		ApplyManifestOK: applyManifestAllowed,
	}
}
