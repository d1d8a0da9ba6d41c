// Package statemachine owns the one legal way an Incident's State changes.
// Every other package computes what SHOULD happen next; only Machine.Apply
// commits it, so the lifecycle graph in spec.md §4.7 is enforced in one
// place instead of scattered across the pipeline.
package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// edges is the legal transition graph. A transition not listed here is
// rejected by Apply.
var edges = map[incident.State][]incident.State{
	incident.StateReceived: {
		incident.StateDeduplicated,
	},
	incident.StateDeduplicated: {
		incident.StateContextGathering,
	},
	incident.StateContextGathering: {
		incident.StateAnalyzing,
	},
	incident.StateAnalyzing: {
		incident.StateAwaitingApproval,
		incident.StateExecuting,
		incident.StateAnalysisFailed,
		incident.StateAnalysisEmpty,
	},
	incident.StateAwaitingApproval: {
		incident.StateExecuting,
		incident.StateAbandoned,
	},
	incident.StateExecuting: {
		incident.StateVerifying,
		incident.StateAwaitingApproval, // next action in the plan needs approval
		incident.StateFailed,
	},
	incident.StateVerifying: {
		incident.StateResolved,
		incident.StateExecuting, // more actions remain in the plan
		incident.StateFailed,
	},
	incident.StateAnalysisFailed: {
		incident.StateFailed,
	},
	incident.StateAnalysisEmpty: {
		incident.StateAbandoned,
	},
}

// ErrIllegalTransition is returned when Apply is asked to move an incident
// along an edge the graph doesn't contain.
type ErrIllegalTransition struct {
	From, To incident.State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// ErrResolutionRuleUnmet is returned when a caller tries to move an
// incident to Resolved without satisfying spec.md §4.7's resolution rule:
// at least one succeeded-and-verified execution. An analysis_empty incident
// has zero executions by construction, so it can never satisfy this rule —
// it always falls through to Abandoned for an operator to triage.
type ErrResolutionRuleUnmet struct {
	IncidentID string
}

func (e *ErrResolutionRuleUnmet) Error() string {
	return fmt.Sprintf("incident %s does not satisfy the resolution rule", e.IncidentID)
}

// Machine is the single writer for every Incident's State field. All
// mutation goes through Apply, which takes the Machine's lock for the
// incident's entire read-check-write sequence — this is what makes it a
// single-writer actor rather than a bag of racy setters.
type Machine struct {
	mu        sync.Mutex
	incidents map[string]*incident.Incident
}

// NewMachine returns an empty Machine.
func NewMachine() *Machine {
	return &Machine{incidents: make(map[string]*incident.Incident)}
}

// Track registers an incident with the Machine, starting in StateReceived
// if it has no state set.
func (m *Machine) Track(inc *incident.Incident) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inc.State == "" {
		inc.State = incident.StateReceived
	}
	m.incidents[inc.IncidentID] = inc
}

// Get returns the tracked incident, if any.
func (m *Machine) Get(incidentID string) (*incident.Incident, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[incidentID]
	return inc, ok
}

// Apply transitions incidentID to `to`, validating the edge and — for a
// transition into Resolved — the resolution rule.
func (m *Machine) Apply(incidentID string, to incident.State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.incidents[incidentID]
	if !ok {
		return fmt.Errorf("incident %s is not tracked", incidentID)
	}

	if inc.IsTerminal() {
		return fmt.Errorf("incident %s is already terminal (%s)", incidentID, inc.State)
	}

	allowed := edges[inc.State]
	legal := false
	for _, s := range allowed {
		if s == to {
			legal = true
			break
		}
	}
	if !legal {
		return &ErrIllegalTransition{From: inc.State, To: to}
	}

	if to == incident.StateResolved {
		if !inc.HasSuccessfulVerifiedExecution() {
			return &ErrResolutionRuleUnmet{IncidentID: incidentID}
		}
	}

	inc.State = to
	inc.UpdatedAt = time.Now()

	switch to {
	case incident.StateResolved:
		inc.TerminalOutcome = incident.OutcomeResolved
		inc.TerminalReason = reason
	case incident.StateFailed:
		inc.TerminalOutcome = incident.OutcomeFailed
		inc.TerminalReason = reason
	case incident.StateAbandoned:
		inc.TerminalOutcome = incident.OutcomeAbandoned
		inc.TerminalReason = reason
	}

	return nil
}
