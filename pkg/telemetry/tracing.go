// Package telemetry wires OpenTelemetry tracing and Prometheus metrics
// across the pipeline. It only depends on the otel API packages: wiring an
// actual exporter (OTLP, Jaeger, ...) is an operator-side concern left to
// cmd/sentineld's startup wiring, same as the teacher leaves exporter
// selection to its own entrypoint.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ondutyhq/sentinel"

// Tracer returns the package-wide Tracer. With no SDK registered this is a
// no-op tracer — spans cost nothing but also go nowhere, which is the
// correct default for tests and for any deployment that hasn't configured
// an exporter.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span for one pipeline stage (context_gathering,
// analysis, execution, verification) tagged with the incident id.
func StartSpan(ctx context.Context, incidentID, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, stage, trace.WithAttributes(
		attribute.String("incident_id", incidentID),
	))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
