package config

import (
	"context"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/statemachine"
)

func prWithAmount(amount int64) *promotion.PullRequest {
	snap := &promotion.ProjectSnapshot{ProjectID: "p1", Amount: amount, Completeness: 90}
	return promotion.NewPullRequest("pr-1", snap, "t", promotion.SpaceEnterprise, "alice", time.Now())
}

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if errs := domainconfig.NewValidator().Validate(cfg); errs.HasErrors() {
		t.Fatalf("default config invalid: %v", errs)
	}
	if cfg.Workflow.CompletenessThreshold != promotion.DefaultCompletenessThreshold {
		t.Errorf("CompletenessThreshold = %d", cfg.Workflow.CompletenessThreshold)
	}
	if cfg.Storage.Driver != domainconfig.DriverMemory || cfg.Publish.Driver != domainconfig.PublishNone {
		t.Errorf("drivers = %s/%s", cfg.Storage.Driver, cfg.Publish.Driver)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &domainconfig.Config{
		Workflow: domainconfig.WorkflowConfig{CompletenessThreshold: 60, Router: RouterStatechart},
		Server:   domainconfig.ServerConfig{Addr: ":9000"},
	}
	ApplyDefaults(cfg)

	if cfg.Workflow.CompletenessThreshold != 60 || cfg.Workflow.Router != RouterStatechart || cfg.Server.Addr != ":9000" {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
	if cfg.Server.WriteTimeout.Duration() != 30*time.Second {
		t.Errorf("WriteTimeout = %v", cfg.Server.WriteTimeout.Duration())
	}
}

func TestEscalationPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     domainconfig.EscalationConfig
		amount  int64
		want    bool
		wantErr bool
	}{
		{"default always", domainconfig.EscalationConfig{}, 1, true, false},
		{"never", domainconfig.EscalationConfig{Mode: domainconfig.EscalateNever}, 1 << 40, false, false},
		{"amount below", domainconfig.EscalationConfig{Mode: domainconfig.EscalateAmount, AmountThreshold: 1000}, 999, false, false},
		{"amount at threshold", domainconfig.EscalationConfig{Mode: domainconfig.EscalateAmount, AmountThreshold: 1000}, 1000, true, false},
		{"amount without threshold", domainconfig.EscalationConfig{Mode: domainconfig.EscalateAmount}, 0, false, true},
		{"unknown", domainconfig.EscalationConfig{Mode: "sometimes"}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			policy, err := EscalationPolicy(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EscalationPolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := policy(prWithAmount(tt.amount)); got != tt.want {
				t.Errorf("policy(%d) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Workflow.CompletenessThreshold = 65
	cfg.Workflow.Router = RouterStatechart

	result, err := NewBuilder(cfg).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if result.Gate.Threshold != 65 {
		t.Errorf("Gate.Threshold = %d, want 65", result.Gate.Threshold)
	}
	if _, ok := result.Router.(*statemachine.ChartRouter); !ok {
		t.Errorf("Router = %T, want *statemachine.ChartRouter", result.Router)
	}
	if result.Roster != nil {
		t.Error("Roster should be nil without reviewers")
	}
	ok, _ := result.Authorizer.CanReview(context.Background(), "anyone", promotion.Level1, prWithAmount(1))
	if !ok {
		t.Error("without a roster any non-applicant may review")
	}
	if got := len(result.Options()); got != 4 {
		t.Errorf("Options() = %d, want 4", got)
	}
}

func TestBuilder_Roster(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Reviewers = domainconfig.ReviewersConfig{Level1: []string{"bob"}}

	result, err := NewBuilder(cfg).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Roster == nil {
		t.Fatal("Roster should be set when reviewers are configured")
	}
	if _, ok := result.Router.(*promotion.TableRouter); !ok {
		t.Errorf("Router = %T, want *promotion.TableRouter", result.Router)
	}

	pr := prWithAmount(1)
	if ok, _ := result.Authorizer.CanReview(context.Background(), "bob", promotion.Level1, pr); !ok {
		t.Error("bob should review level1")
	}
	if ok, _ := result.Authorizer.CanReview(context.Background(), "carol", promotion.Level1, pr); ok {
		t.Error("carol is not on the roster")
	}
}

func TestBuilder_UnknownRouter(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Workflow.Router = "graph"
	if _, err := NewBuilder(cfg).Build(); err == nil {
		t.Error("unknown router should fail")
	}
}
