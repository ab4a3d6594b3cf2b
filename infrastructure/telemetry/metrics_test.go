package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/felixgeelhaar/promote/application"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

var _ application.Metrics = (*Metrics)(nil)

func setupTestMetrics(t *testing.T) (*metric.ManualReader, *Metrics) {
	t.Helper()

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	cfg := DefaultMetricsConfig()
	cfg.Provider = provider
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return reader, m
}

func collect(t *testing.T, reader *metric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func TestMetrics_TransitionApplied(t *testing.T) {
	t.Parallel()

	reader, m := setupTestMetrics(t)
	ctx := context.Background()

	m.TransitionApplied(ctx, promotion.ActionSubmit, promotion.StatusDraft, promotion.StatusPending)
	m.TransitionApplied(ctx, promotion.ActionSubmit, promotion.StatusDraft, promotion.StatusPending)
	m.TransitionApplied(ctx, promotion.ActionApprove, promotion.StatusReviewing, promotion.StatusApproved)

	sum, ok := collect(t, reader, "promotion.transitions").(metricdata.Sum[int64])
	if !ok {
		t.Fatal("expected Sum[int64]")
	}

	var total, submits int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
		if v, _ := dp.Attributes.Value(attribute.Key("promotion.action")); v.AsString() == "submit" {
			submits += dp.Value
		}
	}
	if total != 3 || submits != 2 {
		t.Errorf("total = %d submits = %d, want 3 and 2", total, submits)
	}
}

func TestMetrics_OperationRejected(t *testing.T) {
	t.Parallel()

	reader, m := setupTestMetrics(t)
	m.OperationRejected(context.Background(), "review", application.KindForbidden)

	sum := collect(t, reader, "promotion.rejections").(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(sum.DataPoints))
	}
	dp := sum.DataPoints[0]
	if v, _ := dp.Attributes.Value("error.kind"); v.AsString() != application.KindForbidden {
		t.Errorf("error.kind = %q", v.AsString())
	}
}

func TestMetrics_OperationCompleted(t *testing.T) {
	t.Parallel()

	reader, m := setupTestMetrics(t)
	m.OperationCompleted(context.Background(), "create", 1500*time.Microsecond)
	m.OperationCompleted(context.Background(), "create", 2500*time.Microsecond)

	hist, ok := collect(t, reader, "promotion.operation.duration").(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64]")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	if dp := hist.DataPoints[0]; dp.Count != 2 || dp.Sum != 4 {
		t.Errorf("count = %d sum = %v, want 2 and 4ms", dp.Count, dp.Sum)
	}
}
