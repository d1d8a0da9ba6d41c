// Package integration defines the Adapter contract shared by every external
// collaborator (Kubernetes, metrics, docs, source control, incident
// management), plus the retry wrapper and registry used to drive them.
package integration

import (
	"context"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// Adapter is the interface every integration implements. Connect/Health
// establish and probe a connection; FetchContext gathers read-only context
// for the Analysis Engine; ExecuteAction runs a CommandSpec produced by the
// Command Planner. Retry logic lives outside the interface, in Retry.
type Adapter interface {
	Name() string
	Connect(ctx context.Context) error
	Health(ctx context.Context) error
	FetchContext(ctx context.Context, inc incident.Incident) (incident.ContextBundle, error)
	ExecuteAction(ctx context.Context, cmd incident.CommandSpec) (incident.ExecutionRecord, error)
}
