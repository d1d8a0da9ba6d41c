package integration_test

import (
	"context"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// fakeAdapter is a minimal in-memory Adapter used across this package's
// tests.
type fakeAdapter struct {
	name        string
	connectErr  error
	healthErr   error
	fetchErr    error
	executeErr  error
	fetchCalls  int
	executeCalls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeAdapter) Health(ctx context.Context) error { return f.healthErr }

func (f *fakeAdapter) FetchContext(ctx context.Context, inc incident.Incident) (incident.ContextBundle, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return incident.ContextBundle{}, f.fetchErr
	}
	return incident.ContextBundle{AdapterName: f.name, OK: true}, nil
}

func (f *fakeAdapter) ExecuteAction(ctx context.Context, cmd incident.CommandSpec) (incident.ExecutionRecord, error) {
	f.executeCalls++
	if f.executeErr != nil {
		return incident.ExecutionRecord{}, f.executeErr
	}
	return incident.ExecutionRecord{Status: incident.StatusSucceeded}, nil
}
