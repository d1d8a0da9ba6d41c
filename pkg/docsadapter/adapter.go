// Package docsadapter is the "documentation" integration.Adapter: it keeps
// an in-memory runbook index (service name -> remediation notes) and
// filters it per-alert with a github.com/itchyny/gojq query, giving the
// Analysis Engine prior operator guidance for the alerting service.
package docsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/itchyny/gojq"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
	"github.com/ondutyhq/sentinel/pkg/incident"
)

// defaultQuery selects every runbook whose service matches $service, and
// within those, the ones whose tags intersect $severity or carry no tags at
// all (general guidance always applies).
const defaultQuery = `.runbooks[] | select(.service == $service) | select((.tags | index($severity)) or (.tags | length == 0))`

// Runbook is one operator-authored remediation note.
type Runbook struct {
	Service string   `json:"service"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Tags    []string `json:"tags"`
}

// Adapter is the runbook documentation integration. It is read-only:
// ExecuteAction always returns KindUnsupported.
type Adapter struct {
	document map[string]any // {"runbooks": [...]}
	code     *gojq.Code
}

// NewAdapter compiles defaultQuery and indexes runbooks in memory.
func NewAdapter(runbooks []Runbook) (*Adapter, error) {
	raw, err := json.Marshal(map[string]any{"runbooks": runbooks})
	if err != nil {
		return nil, fmt.Errorf("docsadapter: marshal runbooks: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docsadapter: round-trip runbooks: %w", err)
	}
	return newAdapterWithDocument(doc)
}

// NewAdapterFromFile loads a JSON runbook index (the shape NewAdapter
// marshals: {"runbooks": [...]}) from path.
func NewAdapterFromFile(path string) (*Adapter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("docsadapter: read %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docsadapter: parse %s: %w", path, err)
	}
	return newAdapterWithDocument(doc)
}

func newAdapterWithDocument(doc map[string]any) (*Adapter, error) {
	query, err := gojq.Parse(defaultQuery)
	if err != nil {
		return nil, fmt.Errorf("docsadapter: parse query: %w", err)
	}
	code, err := gojq.Compile(query, gojq.WithVariables([]string{"$service", "$severity"}))
	if err != nil {
		return nil, fmt.Errorf("docsadapter: compile query: %w", err)
	}
	return &Adapter{document: doc, code: code}, nil
}

func (a *Adapter) Name() string { return "documentation" }

func (a *Adapter) Connect(ctx context.Context) error { return nil }

func (a *Adapter) Health(ctx context.Context) error { return nil }

// FetchContext filters the runbook index down to the entries matching the
// alert's service and severity.
func (a *Adapter) FetchContext(ctx context.Context, inc incident.Incident) (incident.ContextBundle, error) {
	start := time.Now()
	iter := a.code.RunWithContext(ctx, a.document, inc.Alert.Service, string(inc.Alert.Severity))

	var matches []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return incident.ContextBundle{}, senerrors.Semantic("fetch_context", a.Name(), err)
		}
		matches = append(matches, v)
	}

	return incident.ContextBundle{
		AdapterName: a.Name(),
		OK:          true,
		Data:        map[string]any{"runbooks": matches},
		DurationMS:  time.Since(start).Milliseconds(),
	}, nil
}

// ExecuteAction is unsupported: spec.md §4.1 names no documentation verb.
func (a *Adapter) ExecuteAction(ctx context.Context, cmd incident.CommandSpec) (incident.ExecutionRecord, error) {
	return incident.ExecutionRecord{Command: cmd, Status: incident.StatusSkipped},
		senerrors.Unsupported("execute_action", a.Name(), fmt.Errorf("documentation adapter is read-only"))
}
