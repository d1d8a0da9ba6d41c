// Package aggregator fans an incident's context-gathering step out across
// every registered adapter concurrently, bounding both the whole fan-out
// and each adapter call so one slow or wedged integration can't stall
// analysis (spec.md §4.2).
package aggregator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ondutyhq/sentinel/pkg/incident"
	"github.com/ondutyhq/sentinel/pkg/integration"
)

// OverallDeadline bounds the entire fan-out; PerAdapterDeadline bounds one
// adapter's FetchContext call (spec.md §4.2).
const (
	OverallDeadline    = 30 * time.Second
	PerAdapterDeadline = 10 * time.Second
)

// MaxConcurrency caps how many adapters run FetchContext at once.
const MaxConcurrency = 8

// Aggregator gathers ContextBundles from every registered adapter.
type Aggregator struct {
	registry *integration.Registry
	logger   *zap.Logger
}

// NewAggregator builds an Aggregator over registry.
func NewAggregator(registry *integration.Registry, logger *zap.Logger) *Aggregator {
	return &Aggregator{registry: registry, logger: logger}
}

// Gather runs FetchContext on every adapter concurrently, bounded by
// OverallDeadline, returning one ContextBundle per adapter name. A panic in
// any one adapter call is recovered and turned into a failed ContextBundle
// so it can never take down the whole fan-out; a per-adapter timeout
// likewise yields a failed, truncated bundle rather than aborting the rest.
func (a *Aggregator) Gather(ctx context.Context, inc incident.Incident) map[string]incident.ContextBundle {
	adapters := a.registry.All()
	results := make(map[string]incident.ContextBundle, len(adapters))

	if len(adapters) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, OverallDeadline)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(MaxConcurrency)

	bundles := make([]incident.ContextBundle, len(adapters))
	for idx := range adapters {
		idx := idx
		adapter := adapters[idx]
		group.Go(func() error {
			bundles[idx] = a.fetchOne(groupCtx, adapter, inc)
			return nil
		})
	}
	// Errors are never returned by fetchOne (they're folded into the
	// bundle), so this only waits — it never aborts the group early.
	_ = group.Wait()

	for idx, adapter := range adapters {
		results[adapter.Name()] = bundles[idx]
	}
	return results
}

func (a *Aggregator) fetchOne(ctx context.Context, adapter integration.Adapter, inc incident.Incident) (bundle incident.ContextBundle) {
	name := adapter.Name()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("adapter panicked during FetchContext", zap.String("adapter", name), zap.Any("panic", r))
			bundle = incident.ContextBundle{AdapterName: name, OK: false, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, PerAdapterDeadline)
	defer cancel()

	start := time.Now()
	var result incident.ContextBundle
	err := integration.DefaultRetryPolicy.Do(callCtx, name, func(attemptCtx context.Context) error {
		var fetchErr error
		result, fetchErr = adapter.FetchContext(attemptCtx, inc)
		return fetchErr
	})
	result.AdapterName = name
	result.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		result.OK = false
		result.Error = err.Error()
		if callCtx.Err() != nil {
			result.Truncated = true
		}
		return result
	}
	result.OK = true
	return result
}
