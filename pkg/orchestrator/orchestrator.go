// Package orchestrator wires the full pipeline — dedup, context gathering,
// analysis, risk planning, the autonomy gate, execution, and state
// transitions — into the single place that turns an ingested Alert into a
// resolved, failed, or abandoned Incident (spec.md §4).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ondutyhq/sentinel/internal/config"
	"github.com/ondutyhq/sentinel/pkg/aggregator"
	"github.com/ondutyhq/sentinel/pkg/analysis"
	"github.com/ondutyhq/sentinel/pkg/approval"
	"github.com/ondutyhq/sentinel/pkg/autonomy"
	"github.com/ondutyhq/sentinel/pkg/dedup"
	"github.com/ondutyhq/sentinel/pkg/executor"
	"github.com/ondutyhq/sentinel/pkg/incident"
	"github.com/ondutyhq/sentinel/pkg/incidentmgmt"
	"github.com/ondutyhq/sentinel/pkg/ingress"
	"github.com/ondutyhq/sentinel/pkg/livelog"
	"github.com/ondutyhq/sentinel/pkg/notification"
	"github.com/ondutyhq/sentinel/pkg/riskplanner"
	"github.com/ondutyhq/sentinel/pkg/statemachine"
)

// MaxInFlightIncidents bounds how many incidents this process drives at
// once. Accept sheds load past this bound by returning ingress.ErrBackpressure
// rather than growing an unbounded number of incident goroutines.
const MaxInFlightIncidents = 64

// Orchestrator implements ingress.Intake and drives every incident through
// the pipeline on its own goroutine, one incident at a time.
type Orchestrator struct {
	dedup      *dedup.Checker
	aggregator *aggregator.Aggregator
	engine     *analysis.Engine
	planner    *riskplanner.Planner
	gate       *autonomy.Gate
	exec       *executor.Executor
	machine    *statemachine.Machine
	approvals  *approval.Queue
	livelog    *livelog.Broadcaster
	autonomy   *config.AutonomyStore
	logger     *zap.Logger
	sem        *semaphore.Weighted

	// notifier and incidentMgmt are optional ambient integrations: both are
	// nil-safe to leave unset, since not every deployment wants a Slack
	// channel or has a PagerDuty API token configured.
	notifier     *notification.Notifier
	incidentMgmt *incidentmgmt.Client
}

// WithNotifier attaches a Slack notifier; lifecycle events post there in
// addition to the livelog broadcast.
func (o *Orchestrator) WithNotifier(n *notification.Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// WithMaxInFlight overrides MaxInFlightIncidents's default bound on the
// number of incidents this Orchestrator drives concurrently.
func (o *Orchestrator) WithMaxInFlight(n int64) *Orchestrator {
	o.sem = semaphore.NewWeighted(n)
	return o
}

// WithIncidentMgmt attaches a PagerDuty client; incidents sourced from
// PagerDuty are acknowledged on first execution and resolved on closeout.
func (o *Orchestrator) WithIncidentMgmt(c *incidentmgmt.Client) *Orchestrator {
	o.incidentMgmt = c
	return o
}

// New wires an Orchestrator from its already-constructed collaborators.
func New(
	dedupChecker *dedup.Checker,
	agg *aggregator.Aggregator,
	engine *analysis.Engine,
	planner *riskplanner.Planner,
	gate *autonomy.Gate,
	exec *executor.Executor,
	machine *statemachine.Machine,
	approvals *approval.Queue,
	live *livelog.Broadcaster,
	autonomyStore *config.AutonomyStore,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		dedup:      dedupChecker,
		aggregator: agg,
		engine:     engine,
		planner:    planner,
		gate:       gate,
		exec:       exec,
		machine:    machine,
		approvals:  approvals,
		livelog:    live,
		autonomy:   autonomyStore,
		logger:     logger,
		sem:        semaphore.NewWeighted(MaxInFlightIncidents),
	}
}

// Accept is the ingress.Intake entrypoint: claim the alert's fingerprint
// against the dedup window, and either start a new incident or fold the
// alert into an already-running one. A brand-new incident only starts once
// a slot in the bounded in-flight pool is free; past that bound it returns
// ingress.ErrBackpressure so the webhook front door sheds load with a 429
// instead of growing an unbounded number of goroutines.
func (o *Orchestrator) Accept(alert incident.Alert) error {
	fingerprint := incident.Fingerprint(alert)
	incidentID := uuid.NewString()

	claimed, existingID, err := o.dedup.Claim(context.Background(), fingerprint, incidentID)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !claimed {
		if inc, ok := o.machine.Get(existingID); ok {
			inc.AlertHistory = append(inc.AlertHistory, alert)
		}
		_ = o.dedup.Refresh(context.Background(), fingerprint)
		return nil
	}

	if !o.sem.TryAcquire(1) {
		_ = o.dedup.Release(context.Background(), fingerprint)
		return ingress.ErrBackpressure
	}

	inc := &incident.Incident{
		IncidentID:  incidentID,
		Alert:       alert,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
		Context:     make(map[string]incident.ContextBundle),
	}
	o.machine.Track(inc)
	o.livelog.Publish(context.Background(), livelog.Event{Type: livelog.EventIncidentCreated, IncidentID: incidentID, At: time.Now()})

	go o.run(inc)
	return nil
}

// run drives one incident from received through to a terminal state.
func (o *Orchestrator) run(inc *incident.Incident) {
	ctx := context.Background()
	defer o.sem.Release(1)
	defer o.closeout(ctx, inc)

	if err := o.machine.Apply(inc.IncidentID, incident.StateDeduplicated, ""); err != nil {
		o.logger.Error("transition to deduplicated failed", zap.Error(err))
		return
	}

	if err := o.machine.Apply(inc.IncidentID, incident.StateContextGathering, ""); err != nil {
		o.logger.Error("transition to context_gathering failed", zap.Error(err))
		return
	}
	inc.Context = o.aggregator.Gather(ctx, *inc)

	if err := o.machine.Apply(inc.IncidentID, incident.StateAnalyzing, ""); err != nil {
		o.logger.Error("transition to analyzing failed", zap.Error(err))
		return
	}
	result := o.engine.Analyze(ctx, *inc)

	switch result.Outcome {
	case analysis.OutcomeAnalysisFailed:
		_ = o.machine.Apply(inc.IncidentID, incident.StateAnalysisFailed, "")
		_ = o.machine.Apply(inc.IncidentID, incident.StateFailed, "analysis_failed")
		return
	case analysis.OutcomeAnalysisEmpty:
		// An analysis_empty plan has zero executable actions, so it can never
		// satisfy the resolution rule (statemachine.Machine enforces this) —
		// it always falls through to abandoned for an operator to triage.
		_ = o.machine.Apply(inc.IncidentID, incident.StateAnalysisEmpty, "")
		_ = o.machine.Apply(inc.IncidentID, incident.StateAbandoned, incident.ReasonNoExecutableActions)
		return
	}

	inc.Plan = result.Plan
	o.livelog.Publish(ctx, livelog.Event{Type: livelog.EventActionPlanned, IncidentID: inc.IncidentID, At: time.Now()})

	o.executePlan(ctx, inc)
}

// executePlan walks every ResolutionAction's expanded CommandSpecs through
// the Autonomy Gate, one at a time, per spec.md §4.5/§4.6.
func (o *Orchestrator) executePlan(ctx context.Context, inc *incident.Incident) {
	cfg := o.autonomy.Get()

	for _, action := range inc.Plan.Actions {
		candidates := candidateTargets(inc.Context)
		specs, reason, err := o.planner.Expand(ctx, action, candidates)
		if err != nil {
			o.logger.Error("command planner failed", zap.Error(err), zap.String("incident_id", inc.IncidentID))
			continue
		}
		if len(specs) == 0 {
			o.logger.Info("action produced no executable commands", zap.String("incident_id", inc.IncidentID), zap.String("reason", reason))
			continue
		}

		for _, spec := range specs {
			o.runOne(ctx, inc, cfg, action, spec)
			if inc.IsTerminal() {
				return
			}
		}
	}

	if !inc.HasSuccessfulVerifiedExecution() {
		_ = o.machine.Apply(inc.IncidentID, incident.StateFailed, "no action succeeded")
		return
	}
	if inc.State == incident.StateVerifying {
		_ = o.machine.Apply(inc.IncidentID, incident.StateResolved, incident.ReasonAutoRecovered)
		o.livelog.Publish(ctx, livelog.Event{Type: livelog.EventIncidentResolved, IncidentID: inc.IncidentID, At: time.Now()})
	}
}

func (o *Orchestrator) runOne(ctx context.Context, inc *incident.Incident, cfg config.AutonomyConfig, action incident.ResolutionAction, spec incident.CommandSpec) {
	if o.exec.CircuitOpen() {
		cfg.EmergencyStop = true // force preview-only through the same gate path as an operator-tripped stop
	}

	decision, reason := o.gate.Evaluate(cfg, spec, action.Confidence)

	switch decision {
	case autonomy.DecisionPreviewOnly:
		inc.Executions = append(inc.Executions, incident.ExecutionRecord{
			Command: spec,
			Status:  incident.StatusSkipped,
			Reason:  reason,
		})
		return

	case autonomy.DecisionApprovalRequired:
		req := incident.ApprovalRequest{
			ID:             uuid.NewString(),
			IncidentID:     inc.IncidentID,
			CommandPreview: fmt.Sprintf("%s %s", spec.TargetSystem, spec.Verb),
			RiskLevel:      spec.ClassifiedRisk,
			Confidence:     action.Confidence,
			RequestedAt:    time.Now(),
		}
		if err := o.approvals.Enqueue(ctx, req); err != nil {
			o.logger.Error("failed to enqueue approval request", zap.Error(err))
		}
		_ = o.machine.Apply(inc.IncidentID, incident.StateAwaitingApproval, "")
		return

	case autonomy.DecisionAutoExecute:
		if inc.State != incident.StateExecuting {
			firstExecution := !inc.HasAttemptedExecution()
			if err := o.machine.Apply(inc.IncidentID, incident.StateExecuting, ""); err != nil {
				o.logger.Error("transition to executing failed", zap.Error(err))
				return
			}
			if firstExecution && o.incidentMgmt != nil && inc.Alert.Source == incident.SourcePagerDuty {
				if err := o.incidentMgmt.Acknowledge(ctx, inc.Alert.ID); err != nil {
					o.logger.Warn("failed to acknowledge incident upstream", zap.Error(err), zap.String("incident_id", inc.IncidentID))
				}
			}
		}
		o.livelog.Publish(ctx, livelog.Event{Type: livelog.EventActionExecuting, IncidentID: inc.IncidentID, At: time.Now()})

		rec := o.exec.Execute(ctx, inc.IncidentID, action, spec)
		inc.Executions = append(inc.Executions, rec)
		o.livelog.Publish(ctx, livelog.Event{Type: livelog.EventActionCompleted, IncidentID: inc.IncidentID, Detail: string(rec.Status), At: time.Now()})

		if rec.Status == incident.StatusSucceeded || rec.Status == incident.StatusFailed {
			_ = o.machine.Apply(inc.IncidentID, incident.StateVerifying, "")
		}
	}
}

// closeout runs once an incident's goroutine reaches a terminal state (or
// gives up early on an internal error): it posts a Slack summary and, for a
// resolved PagerDuty-sourced incident, resolves it upstream too. Both
// integrations are optional and never block termination on their own
// failure.
func (o *Orchestrator) closeout(ctx context.Context, inc *incident.Incident) {
	if !inc.IsTerminal() {
		return
	}

	if o.notifier != nil {
		o.notifier.Notify(ctx, *inc, "incident_"+string(inc.TerminalOutcome))
	}

	if inc.TerminalOutcome == incident.OutcomeResolved && o.incidentMgmt != nil && inc.Alert.Source == incident.SourcePagerDuty {
		if err := o.incidentMgmt.Resolve(ctx, inc.Alert.ID); err != nil {
			o.logger.Warn("failed to resolve incident upstream", zap.Error(err), zap.String("incident_id", inc.IncidentID))
		}
	}
}

// candidateTargets pulls a best-effort list of resolvable placeholder
// targets (pod names) out of the gathered context bundles. k8sadapter
// populates ContextBundle.Data["pods"] as []map[string]any (one summary per
// pod, per summarizePods), so candidates are the "name" field of each.
func candidateTargets(ctxBundles map[string]incident.ContextBundle) []string {
	bundle, ok := ctxBundles["kubernetes"]
	if !ok || !bundle.OK {
		return nil
	}
	pods, ok := bundle.Data["pods"].([]map[string]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(pods))
	for _, p := range pods {
		if name, ok := p["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names
}
