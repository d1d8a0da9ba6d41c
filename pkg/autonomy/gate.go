// Package autonomy implements the Autonomy Gate: the per-CommandSpec
// decision of whether to auto-execute, require approval, or preview-only,
// driven by mode + risk + confidence (spec.md §4.5).
package autonomy

import (
	"github.com/ondutyhq/sentinel/internal/config"
	"github.com/ondutyhq/sentinel/pkg/incident"
)

// Decision is the Autonomy Gate's verdict for one CommandSpec.
type Decision string

const (
	DecisionAutoExecute     Decision = "auto_execute"
	DecisionApprovalRequired Decision = "approval_required"
	DecisionPreviewOnly     Decision = "preview_only"
)

// confidenceFloor is the per-risk lower bound a CommandSpec's confidence
// must clear for yolo-mode auto-execution (spec.md §4.5).
var confidenceFloor = map[incident.RiskLevel]float64{
	incident.RiskHigh:   0.9,
	incident.RiskMedium: 0.8,
	incident.RiskLow:    0.7,
}

// Gate evaluates the autonomy decision for a CommandSpec against the
// current AutonomyConfig snapshot.
type Gate struct {
	configRiskLevel func(incident.RiskLevel) config.RiskLevel
}

// NewGate builds a Gate. The risk-level adapter exists because
// internal/config.RiskLevel is intentionally a separate type from
// incident.RiskLevel (config stays free of a pkg/incident dependency).
func NewGate() *Gate {
	return &Gate{configRiskLevel: func(r incident.RiskLevel) config.RiskLevel { return config.RiskLevel(r) }}
}

// Evaluate returns the Decision for cmd, plus a reason when the decision is
// preview-only (one of plan_mode, dry_run, emergency_stop).
func (g *Gate) Evaluate(cfg config.AutonomyConfig, cmd incident.CommandSpec, confidence float64) (Decision, string) {
	if cfg.EmergencyStop {
		return DecisionPreviewOnly, incident.ReasonEmergencyStop
	}
	if cfg.Mode == config.ModePlan {
		return DecisionPreviewOnly, incident.ReasonPlanMode
	}
	if cfg.DryRunMode {
		return DecisionPreviewOnly, incident.ReasonDryRun
	}

	risk := g.configRiskLevel(cmd.ClassifiedRisk)

	if cfg.Mode == config.ModeYOLO {
		if g.meetsConfidenceFloor(cfg, cmd.ClassifiedRisk, confidence) {
			return DecisionAutoExecute, ""
		}
		// Falls through to approval-required so a low-confidence action
		// doesn't silently vanish under yolo: it still gets an operator
		// look rather than running blind or being dropped outright.
		return DecisionApprovalRequired, ""
	}

	if cfg.Mode == config.ModeApproval && cfg.ApprovalRequiredForRisk(risk) {
		return DecisionApprovalRequired, ""
	}

	return DecisionAutoExecute, ""
}

func (g *Gate) meetsConfidenceFloor(cfg config.AutonomyConfig, risk incident.RiskLevel, confidence float64) bool {
	if risk == incident.RiskLow && cfg.TrustAllYOLO {
		return true
	}
	floor, ok := confidenceFloor[risk]
	if !ok {
		return true
	}
	return confidence >= floor
}
