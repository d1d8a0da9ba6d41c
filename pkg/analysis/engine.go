package analysis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// Outcome tags the result of running the Analysis Engine on one incident,
// driving the state machine's analyzing → {analyzing, analysis_failed,
// analysis_empty} transition (spec.md §4.3).
type Outcome string

const (
	OutcomePlanned       Outcome = "planned"
	OutcomeAnalysisFailed Outcome = "analysis_failed"
	OutcomeAnalysisEmpty Outcome = "analysis_empty"
)

// Result is the Engine's output for one incident.
type Result struct {
	Outcome Outcome
	Plan    *incident.ResolutionPlan
	Err     error
}

// Engine builds the prompt, calls the model within a timeout, and parses
// the response into a typed ResolutionPlan.
type Engine struct {
	model   Model
	timeout time.Duration
	logger  *zap.Logger
}

// NewEngine builds an Engine. timeout defaults to 60s per spec.md §4.3 when
// zero is passed.
func NewEngine(model Model, timeout time.Duration, logger *zap.Logger) *Engine {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Engine{model: model, timeout: timeout, logger: logger}
}

// Analyze runs one incident through the engine.
func (e *Engine) Analyze(ctx context.Context, inc incident.Incident) Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := BuildPrompt(inc)

	response, err := e.model.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.logger.Warn("model request timed out", zap.String("incident_id", inc.IncidentID))
		}
		return Result{Outcome: OutcomeAnalysisFailed, Err: err}
	}

	plan, err := Parse(response)
	if err != nil {
		e.logger.Warn("unparseable model response", zap.String("incident_id", inc.IncidentID), zap.Error(err))
		return Result{Outcome: OutcomeAnalysisFailed, Err: err}
	}

	if len(plan.Actions) == 0 {
		return Result{Outcome: OutcomeAnalysisEmpty, Plan: plan}
	}

	return Result{Outcome: OutcomePlanned, Plan: plan}
}
