package statemachine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// ChartRouter routes review actions through the review statechart. It is
// interchangeable with promotion.TableRouter.
type ChartRouter struct {
	machine  *statekit.MachineConfig[*Context]
	escalate promotion.EscalationPolicy
}

// NewChartRouter builds the review chart. A nil policy always escalates.
func NewChartRouter(policy promotion.EscalationPolicy) (*ChartRouter, error) {
	machine, err := NewReviewMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to build review chart: %w", err)
	}
	if policy == nil {
		policy = promotion.AlwaysEscalate
	}
	return &ChartRouter{machine: machine, escalate: policy}, nil
}

// Decide implements promotion.Router. Each call runs on a fresh
// interpreter, so the router is safe for concurrent use.
func (r *ChartRouter) Decide(pr *promotion.PullRequest, action promotion.Action, level promotion.Level) (promotion.Decision, error) {
	from := promotion.StatusPending
	if pr != nil {
		from = pr.Status
	}
	invalid := &promotion.InvalidTransitionError{From: from, Action: action, Level: level}

	escalate := level == promotion.Level1 && action == promotion.ActionApprove && r.escalate(pr)
	event, ok := EventFor(action, escalate)
	if !ok {
		return promotion.Decision{}, invalid
	}

	ctx := &Context{Request: pr, Escalate: escalate}
	interp, err := NewInterpreter(r.machine, ctx, level)
	if err != nil {
		return promotion.Decision{}, invalid
	}
	defer interp.Stop()

	fired, err := interp.Send(event)
	if err != nil || !fired {
		return promotion.Decision{}, invalid
	}

	decision, ok := decisionFor(interp.State())
	if !ok {
		return promotion.Decision{}, fmt.Errorf("review chart reached unknown state %q", interp.State())
	}
	return decision, nil
}

var _ promotion.Router = (*ChartRouter)(nil)
