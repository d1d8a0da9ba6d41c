// Package executor runs CommandSpecs chosen for execution by the Autonomy
// Gate: one action at a time per incident by default, wrapped by a circuit
// breaker, with audit entries bracketing every attempt and a verification
// predicate confirming the intended effect (spec.md §4.6).
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ondutyhq/sentinel/pkg/incident"
	"github.com/ondutyhq/sentinel/pkg/integration"
	"github.com/ondutyhq/sentinel/pkg/k8sadapter"
)

// rollbackableVerbs maps a mutating Kubernetes verb to the fact that
// rollback_deployment ("rollout undo") can undo it. restart_pod has nothing
// to undo — the workload controller already recreated the pod — so it's
// absent here even when an action flags rollback_possible.
var rollbackableVerbs = map[string]bool{
	k8sadapter.VerbScaleDeployment:  true,
	k8sadapter.VerbPatchMemoryLimit: true,
	k8sadapter.VerbPatchCPULimit:    true,
	k8sadapter.VerbSetImage:         true,
}

// buildRollbackCommand derives the rollback_deployment CommandSpec for a
// failed command, if one applies. ok is false when the command's target
// system or verb has no defined rollback.
func buildRollbackCommand(cmd incident.CommandSpec) (rollback incident.CommandSpec, ok bool) {
	if cmd.TargetSystem != "kubernetes" || !rollbackableVerbs[cmd.Verb] {
		return incident.CommandSpec{}, false
	}
	return incident.CommandSpec{
		TargetSystem: cmd.TargetSystem,
		Verb:         k8sadapter.VerbRollbackDeployment,
		Args: map[string]any{
			"namespace": cmd.Args["namespace"],
			"name":      cmd.Args["name"],
		},
	}, true
}

// AuditAppender records a command issuance and its result as two linked
// entries, per spec.md §6's persisted-state contract. Implemented by
// pkg/audit; declared here to keep this package independent of the audit
// store's storage engine.
type AuditAppender interface {
	AppendIssued(ctx context.Context, incidentID string, cmd incident.CommandSpec) (string, error)
	AppendResult(ctx context.Context, auditRef string, rec incident.ExecutionRecord) error
}

// Executor runs one CommandSpec at a time within an incident.
type Executor struct {
	adapters *integration.Registry
	verifier *Verifier
	audit    AuditAppender
	breaker  *gobreaker.CircuitBreaker[any]
	logger   *zap.Logger
}

// NewExecutor wires the adapter registry, verifier, audit store, and a
// dedicated circuit breaker for this executor instance.
func NewExecutor(adapters *integration.Registry, verifier *Verifier, audit AuditAppender, logger *zap.Logger) *Executor {
	return &Executor{
		adapters: adapters,
		verifier: verifier,
		audit:    audit,
		breaker:  NewCircuitBreaker("executor"),
		logger:   logger,
	}
}

// CircuitOpen reports whether the breaker is currently open, so the
// Autonomy Gate can force preview-only per spec.md §4.6 / §8 invariant 6.
func (e *Executor) CircuitOpen() bool {
	return e.breaker.State() == gobreaker.StateOpen
}

// Execute runs one CommandSpec end to end: audit-issued entry, adapter
// dispatch through the circuit breaker, verification, audit-result entry,
// and — on a failed-but-rollback-possible action — a scheduled rollback.
func (e *Executor) Execute(ctx context.Context, incidentID string, action incident.ResolutionAction, cmd incident.CommandSpec) incident.ExecutionRecord {
	auditRef, err := e.audit.AppendIssued(ctx, incidentID, cmd)
	if err != nil {
		e.logger.Error("failed to append issued audit entry", zap.Error(err), zap.String("incident_id", incidentID))
	}

	adapter, ok := e.adapters.Get(cmd.TargetSystem)
	if !ok {
		rec := incident.ExecutionRecord{
			Command:    cmd,
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
			Status:     incident.StatusFailed,
			Reason:     fmt.Sprintf("no adapter registered for target system %q", cmd.TargetSystem),
		}
		e.recordResult(ctx, auditRef, rec)
		return rec
	}

	ran := false
	result, breakerErr := e.breaker.Execute(func() (any, error) {
		ran = true
		start := time.Now()
		rec, execErr := adapter.ExecuteAction(ctx, cmd)
		rec.Command = cmd
		rec.StartedAt = start
		rec.FinishedAt = time.Now()
		if execErr != nil {
			return rec, execErr
		}
		if rec.Status != incident.StatusSucceeded {
			return rec, nil
		}
		verification := e.verifier.Verify(ctx, cmd)
		rec.Verification = &verification
		if !verification.Passed {
			rec.Status = incident.StatusFailed
			return rec, fmt.Errorf("verification failed: %s", verification.Predicate)
		}
		return rec, nil
	})

	rec, _ := result.(incident.ExecutionRecord)
	if !ran {
		// The breaker rejected the call outright (open) before the adapter ran.
		rec = incident.ExecutionRecord{
			Command:    cmd,
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
			Status:     incident.StatusSkipped,
			Reason:     incident.ReasonCircuitOpen,
		}
	} else if breakerErr != nil {
		e.logger.Debug("execute_action reported an error", zap.Error(breakerErr), zap.String("verb", cmd.Verb))
	}

	if rec.Status == incident.StatusFailed && action.RollbackPossible {
		if rollbackRef := e.scheduleRollback(ctx, incidentID, adapter, cmd); rollbackRef != "" {
			rec.RollbackRef = rollbackRef
		}
	}

	e.recordResult(ctx, auditRef, rec)

	return rec
}

// scheduleRollback runs the rollback command derived from cmd (if any)
// directly against adapter, bypassing the circuit breaker — a rollback is a
// correction for a tracked failure, not a new action whose failures should
// count toward tripping it. It records its own issued/result audit entries
// and returns the audit ref of the rollback's issued entry, or "" if this
// command has no defined rollback.
func (e *Executor) scheduleRollback(ctx context.Context, incidentID string, adapter integration.Adapter, cmd incident.CommandSpec) string {
	rollbackCmd, ok := buildRollbackCommand(cmd)
	if !ok {
		return ""
	}

	e.logger.Info("scheduling rollback", zap.String("incident_id", incidentID), zap.String("verb", cmd.Verb))

	rollbackRef, err := e.audit.AppendIssued(ctx, incidentID, rollbackCmd)
	if err != nil {
		e.logger.Error("failed to append issued audit entry for rollback", zap.Error(err), zap.String("incident_id", incidentID))
	}

	start := time.Now()
	rollbackRec, execErr := adapter.ExecuteAction(ctx, rollbackCmd)
	rollbackRec.Command = rollbackCmd
	rollbackRec.StartedAt = start
	rollbackRec.FinishedAt = time.Now()
	if execErr != nil {
		e.logger.Warn("rollback action failed", zap.Error(execErr), zap.String("incident_id", incidentID))
		rollbackRec.Status = incident.StatusFailed
	} else if rollbackRec.Status == incident.StatusSucceeded {
		rollbackRec.Status = incident.StatusRolledBack
	}

	e.recordResult(ctx, rollbackRef, rollbackRec)
	return rollbackRef
}

func (e *Executor) recordResult(ctx context.Context, auditRef string, rec incident.ExecutionRecord) {
	if err := e.audit.AppendResult(ctx, auditRef, rec); err != nil {
		e.logger.Error("failed to append result audit entry", zap.Error(err))
	}
}
