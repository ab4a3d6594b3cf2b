package promotion

import (
	"errors"
	"testing"
)

func TestTableRouter_Decide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  EscalationPolicy
		action  Action
		level   Level
		want    Decision
		wantErr bool
	}{
		{"default escalates level1 approve", nil, ActionApprove, Level1, Decision{Level2, StatusReviewing}, false},
		{"never escalate", NeverEscalate, ActionApprove, Level1, Decision{LevelNone, StatusApproved}, false},
		{"level2 approve ignores policy", NeverEscalate, ActionApprove, Level2, Decision{LevelNone, StatusApproved}, false},
		{"reject level1", nil, ActionReject, Level1, Decision{LevelNone, StatusRejected}, false},
		{"reject level2", nil, ActionReject, Level2, Decision{LevelNone, StatusRejected}, false},
		{"return level1", nil, ActionReturn, Level1, Decision{LevelNone, StatusReturned}, false},
		{"return level2", nil, ActionReturn, Level2, Decision{LevelNone, StatusReturned}, false},
		{"approve without level", nil, ActionApprove, LevelNone, Decision{}, true},
		{"reject without level", nil, ActionReject, LevelNone, Decision{}, true},
		{"submit is not a review", nil, ActionSubmit, Level1, Decision{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := NewTableRouter(tt.policy)
			pr := requestIn(t, StatusPending, Level1)

			got, err := router.Decide(pr, tt.action, tt.level)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decide() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEscalateAtOrAbove(t *testing.T) {
	t.Parallel()

	policy := EscalateAtOrAbove(1_000_000)

	small := requestIn(t, StatusPending, Level1)
	small.Snapshot.Amount = 999_999
	if policy(small) {
		t.Error("amount below threshold should not escalate")
	}

	large := requestIn(t, StatusPending, Level1)
	large.Snapshot.Amount = 1_000_000
	if !policy(large) {
		t.Error("amount at threshold should escalate")
	}

	if !policy(&PullRequest{}) {
		t.Error("request without snapshot should escalate")
	}
}

func TestTableRouter_DoesNotModifyRequest(t *testing.T) {
	t.Parallel()

	pr := requestIn(t, StatusPending, Level1)
	before := pr.Clone()

	if _, err := NewTableRouter(nil).Decide(pr, ActionApprove, Level1); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if pr.Status != before.Status || pr.CurrentLevel != before.CurrentLevel || pr.Version != before.Version {
		t.Error("router modified the request")
	}
}
