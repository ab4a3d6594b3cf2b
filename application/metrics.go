package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// Metrics records workflow service measurements.
type Metrics interface {
	// TransitionApplied counts a committed transition.
	TransitionApplied(ctx context.Context, action promotion.Action, from, to promotion.Status)

	// OperationRejected counts an operation that returned an error.
	OperationRejected(ctx context.Context, operation string, kind string)

	// OperationCompleted records the latency of an operation.
	OperationCompleted(ctx context.Context, operation string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) TransitionApplied(context.Context, promotion.Action, promotion.Status, promotion.Status) {
}

func (noopMetrics) OperationRejected(context.Context, string, string) {}

func (noopMetrics) OperationCompleted(context.Context, string, time.Duration) {}
