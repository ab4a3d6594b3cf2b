package application

import (
	"time"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

// Option configures the workflow service.
type Option func(*ServiceConfig)

// WithRouter sets the review router. It takes precedence over
// WithEscalationPolicy.
func WithRouter(r promotion.Router) Option {
	return func(c *ServiceConfig) {
		c.Router = r
	}
}

// WithEscalationPolicy sets the level1 escalation predicate used by the
// default table router.
func WithEscalationPolicy(p promotion.EscalationPolicy) Option {
	return func(c *ServiceConfig) {
		c.Escalation = p
	}
}

// WithGate sets the completeness gate.
func WithGate(g promotion.Gate) Option {
	return func(c *ServiceConfig) {
		c.Gate = g
	}
}

// WithAuthorizer sets the reviewer capability check.
func WithAuthorizer(a promotion.Authorizer) Option {
	return func(c *ServiceConfig) {
		c.Authorizer = a
	}
}

// WithSnapshotProvider sets the snapshot source. When set, submit gates on
// a freshly fetched snapshot.
func WithSnapshotProvider(p promotion.SnapshotProvider) Option {
	return func(c *ServiceConfig) {
		c.Snapshots = p
	}
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n notification.Notifier) Option {
	return func(c *ServiceConfig) {
		c.Notifier = n
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(c *ServiceConfig) {
		c.Metrics = m
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *ServiceConfig) {
		c.Clock = now
	}
}

// WithIDGenerator sets the generator for request, record and event IDs.
func WithIDGenerator(gen func() string) Option {
	return func(c *ServiceConfig) {
		c.NewID = gen
	}
}

// WithTokenHistory sets how many idempotency tokens are kept per request.
func WithTokenHistory(n int) Option {
	return func(c *ServiceConfig) {
		c.TokenHistory = n
	}
}

// WithNotifyTimeout bounds each asynchronous notification delivery.
func WithNotifyTimeout(d time.Duration) Option {
	return func(c *ServiceConfig) {
		c.NotifyTimeout = d
	}
}
