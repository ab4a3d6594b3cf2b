// Package telemetry wires OpenTelemetry tracing and metrics for the
// promotion workflow.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// DefaultMeterName is the instrumentation scope of workflow metrics.
const DefaultMeterName = "github.com/felixgeelhaar/promote"

// MetricsConfig configures the metrics recorder.
type MetricsConfig struct {
	// MeterName is the name of the meter (default: DefaultMeterName).
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// Provider supplies the meter. Nil uses the global provider.
	Provider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    DefaultMeterName,
		MeterVersion: "1.0.0",
	}
}

// Metrics records workflow measurements as OpenTelemetry instruments.
type Metrics struct {
	transitions metric.Int64Counter
	rejections  metric.Int64Counter
	operations  metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewMetrics creates the workflow instruments.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.MeterName == "" {
		config.MeterName = DefaultMeterName
	}
	provider := config.Provider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(config.MeterName, metric.WithInstrumentationVersion(config.MeterVersion))

	var (
		m   Metrics
		err error
	)

	m.transitions, err = meter.Int64Counter(
		"promotion.transitions",
		metric.WithDescription("Committed status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejections, err = meter.Int64Counter(
		"promotion.rejections",
		metric.WithDescription("Operations that returned an error, by kind"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.operations, err = meter.Int64Counter(
		"promotion.operations",
		metric.WithDescription("Workflow operations served"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(
		"promotion.operation.duration",
		metric.WithDescription("Latency of workflow operations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// TransitionApplied counts a committed transition.
func (m *Metrics) TransitionApplied(ctx context.Context, action promotion.Action, from, to promotion.Status) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("promotion.action", string(action)),
		attribute.String("promotion.from", string(from)),
		attribute.String("promotion.to", string(to)),
	))
}

// OperationRejected counts a failed operation by error kind.
func (m *Metrics) OperationRejected(ctx context.Context, operation string, kind string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("promotion.operation", operation),
		attribute.String("error.kind", kind),
	))
}

// OperationCompleted records the latency of an operation.
func (m *Metrics) OperationCompleted(ctx context.Context, operation string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("promotion.operation", operation))
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}
