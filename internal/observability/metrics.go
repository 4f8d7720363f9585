// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// PushJobName is the Pushgateway grouping key for batch runs.
const PushJobName = "batchplane"

// Metrics records the outcome of job executions. A batch process is short
// lived, so values are pushed to a Pushgateway rather than scraped.
type Metrics struct {
	registry *promclient.Registry
	provider *metric.MeterProvider

	executions otelmetric.Int64Counter
	duration   otelmetric.Float64Histogram
	warnings   otelmetric.Int64Counter
}

// InitMetrics creates a meter provider backed by a dedicated Prometheus
// registry and registers the batch instruments on it.
func InitMetrics() (*Metrics, error) {
	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	meter := provider.Meter(TracerName)

	m := &Metrics{registry: registry, provider: provider}

	if m.executions, err = meter.Int64Counter("batch_job_executions",
		otelmetric.WithDescription("Finished job executions by classification")); err != nil {
		return nil, fmt.Errorf("failed to create executions counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("batch_job_duration",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Wall time of job executions")); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	if m.warnings, err = meter.Int64Counter("batch_step_warnings",
		otelmetric.WithDescription("Warnings reported by step executions")); err != nil {
		return nil, fmt.Errorf("failed to create warnings counter: %w", err)
	}

	return m, nil
}

// RecordExecution adds one finished execution.
func (m *Metrics) RecordExecution(ctx context.Context, code, classification string, seconds float64, warnings int) {
	if m == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("job_code", code),
		attribute.String("classification", classification),
	)
	m.executions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, seconds, otelmetric.WithAttributes(attribute.String("job_code", code)))
	if warnings > 0 {
		m.warnings.Add(ctx, int64(warnings), otelmetric.WithAttributes(attribute.String("job_code", code)))
	}
}

// Push sends the current values to the Pushgateway at url, grouped by the
// job code. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, code string) error {
	if m == nil || url == "" {
		return nil
	}
	err := push.New(url, PushJobName).
		Gatherer(m.registry).
		Grouping("job_code", code).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
