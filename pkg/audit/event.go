// Package audit persists every command the Executor issues as two linked
// records — "issued" and "result" — so that a process interrupted between
// the two can be reconciled against Kubernetes' actual state (spec.md §6).
package audit

import "time"

// Kind distinguishes the two halves of one command's audit trail.
type Kind string

const (
	KindIssued Kind = "issued"
	KindResult Kind = "result"
)

// Entry is one row of the append-only audit log.
type Entry struct {
	Ref         string    `db:"ref"`
	IncidentID  string    `db:"incident_id"`
	Kind        Kind      `db:"kind"`
	TargetSystem string   `db:"target_system"`
	Verb        string    `db:"verb"`
	ArgsJSON    []byte    `db:"args_json"`
	Status      string    `db:"status"`
	Reason      string    `db:"reason"`
	CreatedAt   time.Time `db:"created_at"`
}
