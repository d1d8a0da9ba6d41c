// Package metricsadapter is the "metrics" integration.Adapter: it queries a
// Prometheus-compatible HTTP API for recent time series tied to an alert's
// service/namespace, giving the Analysis Engine a numeric view (memory,
// restarts, error rate) alongside the Kubernetes adapter's structural one.
package metricsadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
	"github.com/ondutyhq/sentinel/pkg/incident"
)

// Query is one named PromQL template evaluated per FetchContext call. %s is
// substituted with the alert's namespace/service pair.
type Query struct {
	Name string
	Expr string
}

// DefaultQueries covers the signals the engine's prompt template references
// most often: memory pressure, restart churn, and request error rate.
var DefaultQueries = []Query{
	{Name: "memory_usage_bytes", Expr: `sum(container_memory_working_set_bytes{namespace=%q,pod=~%q}) by (pod)`},
	{Name: "restart_count", Expr: `sum(kube_pod_container_status_restarts_total{namespace=%q,pod=~%q}) by (pod)`},
	{Name: "error_rate", Expr: `sum(rate(http_requests_total{namespace=%q,service=%q,code=~"5.."}[%s]))`},
}

// Adapter is the Prometheus-backed metrics integration. It is read-only:
// ExecuteAction always returns KindUnsupported, since no spec.md verb
// targets a metrics backend.
type Adapter struct {
	api     promv1.API
	queries []Query
	lookback time.Duration
}

// NewAdapter builds an Adapter against a Prometheus-compatible server at
// address (e.g. "http://prometheus.monitoring:9090").
func NewAdapter(address string, lookback time.Duration) (*Adapter, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("metricsadapter: build prometheus client: %w", err)
	}
	return &Adapter{api: promv1.NewAPI(client), queries: DefaultQueries, lookback: lookback}, nil
}

// NewAdapterWithAPI builds an Adapter around an already-constructed
// promv1.API, letting tests substitute a fake implementing the same
// interface instead of standing up a real Prometheus server.
func NewAdapterWithAPI(promAPI promv1.API, lookback time.Duration) *Adapter {
	return &Adapter{api: promAPI, queries: DefaultQueries, lookback: lookback}
}

func (a *Adapter) Name() string { return "metrics" }

func (a *Adapter) Connect(ctx context.Context) error { return nil }

func (a *Adapter) Health(ctx context.Context) error {
	_, err := a.api.Runtimeinfo(ctx)
	if err != nil {
		return senerrors.Transient("health", a.Name(), err)
	}
	return nil
}

// FetchContext runs every DefaultQueries entry scoped to the alert's
// namespace/service and folds the results into one ContextBundle. A single
// query's failure doesn't fail the whole bundle — it's recorded under its
// own key so the engine still sees whatever did resolve.
func (a *Adapter) FetchContext(ctx context.Context, inc incident.Incident) (incident.ContextBundle, error) {
	start := time.Now()
	data := map[string]any{}
	podPattern := inc.Alert.Resource + ".*"
	if inc.Alert.Resource == "" {
		podPattern = ".*"
	}

	var anyOK bool
	for _, q := range a.queries {
		var expr string
		if q.Name == "error_rate" {
			expr = fmt.Sprintf(q.Expr, inc.Alert.Namespace, inc.Alert.Service, model.Duration(a.lookback))
		} else {
			expr = fmt.Sprintf(q.Expr, inc.Alert.Namespace, podPattern)
		}

		value, warnings, err := a.api.Query(ctx, expr, time.Now())
		if err != nil {
			data[q.Name+"_error"] = err.Error()
			continue
		}
		if len(warnings) > 0 {
			data[q.Name+"_warnings"] = warnings
		}
		data[q.Name] = flattenVector(value)
		anyOK = true
	}

	if !anyOK {
		return incident.ContextBundle{
			AdapterName: a.Name(),
			OK:          false,
			Error:       "all prometheus queries failed",
			Data:        data,
			DurationMS:  time.Since(start).Milliseconds(),
		}, nil
	}

	return incident.ContextBundle{
		AdapterName: a.Name(),
		OK:          true,
		Data:        data,
		DurationMS:  time.Since(start).Milliseconds(),
	}, nil
}

// ExecuteAction is unsupported: nothing in spec.md §4.1's verb vocabulary
// targets the metrics backend.
func (a *Adapter) ExecuteAction(ctx context.Context, cmd incident.CommandSpec) (incident.ExecutionRecord, error) {
	return incident.ExecutionRecord{Command: cmd, Status: incident.StatusSkipped},
		senerrors.Unsupported("execute_action", a.Name(), fmt.Errorf("metrics adapter is read-only"))
}

// flattenVector reduces a model.Value into a plain []map[string]any the
// Analysis Engine's prompt template can range over without importing
// github.com/prometheus/common/model itself.
func flattenVector(v model.Value) []map[string]any {
	vec, ok := v.(model.Vector)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(vec))
	for _, sample := range vec {
		labels := map[string]string{}
		for name, val := range sample.Metric {
			labels[string(name)] = string(val)
		}
		out = append(out, map[string]any{
			"labels": labels,
			"value":  float64(sample.Value),
		})
	}
	return out
}
