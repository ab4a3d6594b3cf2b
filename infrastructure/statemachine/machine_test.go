package statemachine

import (
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

func TestNewReviewMachine(t *testing.T) {
	t.Parallel()

	machine, err := NewReviewMachine()
	if err != nil {
		t.Fatalf("NewReviewMachine() error = %v", err)
	}
	if machine == nil {
		t.Fatal("NewReviewMachine() returned nil machine")
	}
}

func TestEventFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action   promotion.Action
		escalate bool
		want     statekit.EventType
		ok       bool
	}{
		{promotion.ActionApprove, false, EventApprove, true},
		{promotion.ActionApprove, true, EventEscalate, true},
		{promotion.ActionReject, true, EventReject, true},
		{promotion.ActionReturn, false, EventReturn, true},
		{promotion.ActionSubmit, false, "", false},
		{promotion.ActionWithdraw, false, "", false},
	}

	for _, tt := range tests {
		got, ok := EventFor(tt.action, tt.escalate)
		if got != tt.want || ok != tt.ok {
			t.Errorf("EventFor(%s, %v) = %q, %v; want %q, %v", tt.action, tt.escalate, got, ok, tt.want, tt.ok)
		}
	}
}

func TestInterpreter_Transitions(t *testing.T) {
	t.Parallel()

	machine, err := NewReviewMachine()
	if err != nil {
		t.Fatalf("NewReviewMachine() error = %v", err)
	}

	tests := []struct {
		name      string
		level     promotion.Level
		escalate  bool
		event     statekit.EventType
		wantFired bool
		wantState statekit.StateID
	}{
		{"level1 approve", promotion.Level1, false, EventApprove, true, stateApproved},
		{"level1 escalate", promotion.Level1, true, EventEscalate, true, stateLevel2},
		{"escalate blocked by guard", promotion.Level1, false, EventEscalate, false, stateLevel1},
		{"level1 return", promotion.Level1, false, EventReturn, true, stateReturned},
		{"level2 reject", promotion.Level2, false, EventReject, true, stateRejected},
		{"level2 cannot escalate", promotion.Level2, true, EventEscalate, false, stateLevel2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			interp, err := NewInterpreter(machine, &Context{Escalate: tt.escalate}, tt.level)
			if err != nil {
				t.Fatalf("NewInterpreter() error = %v", err)
			}
			defer interp.Stop()

			fired, err := interp.Send(tt.event)
			if err != nil && tt.wantFired {
				t.Fatalf("Send() error = %v", err)
			}
			if fired != tt.wantFired {
				t.Errorf("fired = %v, want %v", fired, tt.wantFired)
			}
			if tt.wantFired && interp.State() != tt.wantState {
				t.Errorf("State() = %q, want %q", interp.State(), tt.wantState)
			}
			if tt.wantFired && tt.wantState != stateLevel2 && !interp.IsTerminal() {
				t.Error("decided request should be in a final state")
			}
		})
	}
}

func TestNewInterpreter_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	machine, _ := NewReviewMachine()
	if _, err := NewInterpreter(machine, &Context{}, promotion.LevelNone); err == nil {
		t.Error("NewInterpreter(LevelNone) should fail")
	}
}

// The chart must agree with the table router for every input.
func TestChartRouter_MatchesTableRouter(t *testing.T) {
	t.Parallel()

	policies := map[string]promotion.EscalationPolicy{
		"always": promotion.AlwaysEscalate,
		"never":  promotion.NeverEscalate,
		"amount": promotion.EscalateAtOrAbove(1_000_000),
	}
	amounts := []int64{10, 1_000_000}
	actions := []promotion.Action{
		promotion.ActionApprove,
		promotion.ActionReject,
		promotion.ActionReturn,
		promotion.ActionSubmit,
		promotion.ActionWithdraw,
		promotion.ActionDelete,
	}
	levels := []promotion.Level{promotion.Level1, promotion.Level2, promotion.LevelNone}

	for name, policy := range policies {
		chart, err := NewChartRouter(policy)
		if err != nil {
			t.Fatalf("NewChartRouter() error = %v", err)
		}
		table := promotion.NewTableRouter(policy)

		for _, amount := range amounts {
			pr := &promotion.PullRequest{
				ID:       "pr-1",
				Status:   promotion.StatusPending,
				Snapshot: &promotion.ProjectSnapshot{ProjectID: "p", Amount: amount, Completeness: 90},
			}
			for _, level := range levels {
				for _, action := range actions {
					want, wantErr := table.Decide(pr, action, level)
					got, gotErr := chart.Decide(pr, action, level)

					if (wantErr == nil) != (gotErr == nil) {
						t.Errorf("%s/%d %s@%q: table err %v, chart err %v", name, amount, action, level, wantErr, gotErr)
						continue
					}
					if wantErr != nil {
						if !errors.Is(gotErr, promotion.ErrInvalidTransition) {
							t.Errorf("%s/%d %s@%q: chart err %v, want ErrInvalidTransition", name, amount, action, level, gotErr)
						}
						continue
					}
					if got != want {
						t.Errorf("%s/%d %s@%q: chart %+v, table %+v", name, amount, action, level, got, want)
					}
				}
			}
		}
	}
}

func TestChartRouter_DrivesEngine(t *testing.T) {
	t.Parallel()

	router, err := NewChartRouter(promotion.AlwaysEscalate)
	if err != nil {
		t.Fatalf("NewChartRouter() error = %v", err)
	}
	engine := promotion.NewEngine(router)

	snap := &promotion.ProjectSnapshot{ProjectID: "p-1", Completeness: 90}
	pr := promotion.NewPullRequest("pr-1", snap, "", promotion.SpaceEnterprise, "alice", timeAt(0))

	steps := []struct {
		cmd        promotion.Command
		wantStatus promotion.Status
		wantLevel  promotion.Level
	}{
		{promotion.Command{Action: promotion.ActionSubmit, Actor: "alice", At: timeAt(1)}, promotion.StatusPending, promotion.Level1},
		{promotion.Command{Action: promotion.ActionApprove, Actor: "bob", At: timeAt(2)}, promotion.StatusReviewing, promotion.Level2},
		{promotion.Command{Action: promotion.ActionApprove, Actor: "carol", At: timeAt(3)}, promotion.StatusApproved, promotion.LevelNone},
	}
	for i, step := range steps {
		out, err := engine.Apply(pr, step.cmd)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		pr = out.Request
		if pr.Status != step.wantStatus || pr.CurrentLevel != step.wantLevel {
			t.Fatalf("step %d: %s/%q, want %s/%q", i, pr.Status, pr.CurrentLevel, step.wantStatus, step.wantLevel)
		}
	}
}

func timeAt(minutes int) time.Time {
	return time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}
