package config

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/promote/application"
	domainconfig "github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/authz"
	"github.com/felixgeelhaar/promote/infrastructure/statemachine"
)

// Router implementations.
const (
	RouterTable      = "table"
	RouterStatechart = "statechart"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *domainconfig.Config {
	cfg := &domainconfig.Config{
		Name:    "promote",
		Version: "1.0",
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *domainconfig.Config) {
	w := &cfg.Workflow
	if w.CompletenessThreshold == 0 {
		w.CompletenessThreshold = promotion.DefaultCompletenessThreshold
	}
	if w.Escalation.Mode == "" {
		w.Escalation.Mode = domainconfig.EscalateAlways
	}
	if w.TokenHistory == 0 {
		w.TokenHistory = promotion.DefaultTokenHistory
	}
	if w.Router == "" {
		w.Router = RouterTable
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = domainconfig.DriverMemory
	}
	if cfg.Publish.Driver == "" {
		cfg.Publish.Driver = domainconfig.PublishNone
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = domainconfig.Duration(15 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = domainconfig.Duration(30 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = domainconfig.ExporterNone
	}
}

// Builder turns configuration into workflow collaborators.
type Builder struct {
	config *domainconfig.Config
}

// NewBuilder creates a new configuration builder.
func NewBuilder(config *domainconfig.Config) *Builder {
	return &Builder{config: config}
}

// BuildResult contains the components built from configuration.
type BuildResult struct {
	// Escalation decides when level1 approvals go to level2.
	Escalation promotion.EscalationPolicy
	// Router is the review router.
	Router promotion.Router
	// Gate is the completeness gate.
	Gate promotion.Gate
	// Authorizer decides reviewer capability.
	Authorizer promotion.Authorizer
	// Roster is set when reviewers are configured; it accepts reloads.
	Roster *authz.Roster
	// TokenHistory bounds remembered idempotency tokens.
	TokenHistory int
}

// Build builds the workflow components.
func (b *Builder) Build() (*BuildResult, error) {
	w := b.config.Workflow
	result := &BuildResult{
		Gate:         promotion.NewGate(w.CompletenessThreshold),
		TokenHistory: w.TokenHistory,
	}

	escalation, err := EscalationPolicy(w.Escalation)
	if err != nil {
		return nil, err
	}
	result.Escalation = escalation

	switch w.Router {
	case "", RouterTable:
		result.Router = promotion.NewTableRouter(escalation)
	case RouterStatechart:
		router, err := statemachine.NewChartRouter(escalation)
		if err != nil {
			return nil, err
		}
		result.Router = router
	default:
		return nil, fmt.Errorf("unknown router: %s", w.Router)
	}

	if b.config.Reviewers.IsEmpty() {
		result.Authorizer = promotion.AllowAnyReviewer
	} else {
		result.Roster = authz.NewRoster(b.config.Reviewers)
		result.Authorizer = result.Roster
	}

	return result, nil
}

// Options returns the service options for the built components.
func (r *BuildResult) Options() []application.Option {
	return []application.Option{
		application.WithRouter(r.Router),
		application.WithGate(r.Gate),
		application.WithAuthorizer(r.Authorizer),
		application.WithTokenHistory(r.TokenHistory),
	}
}

// EscalationPolicy maps the escalation section to a policy.
func EscalationPolicy(cfg domainconfig.EscalationConfig) (promotion.EscalationPolicy, error) {
	switch cfg.Mode {
	case "", domainconfig.EscalateAlways:
		return promotion.AlwaysEscalate, nil
	case domainconfig.EscalateNever:
		return promotion.NeverEscalate, nil
	case domainconfig.EscalateAmount:
		if cfg.AmountThreshold <= 0 {
			return nil, fmt.Errorf("escalation amount_threshold must be positive")
		}
		return promotion.EscalateAtOrAbove(cfg.AmountThreshold), nil
	default:
		return nil, fmt.Errorf("unknown escalation mode: %s", cfg.Mode)
	}
}
