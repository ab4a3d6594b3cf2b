package promotion

// Decision is the Router's verdict for a review action.
type Decision struct {
	NextLevel  Level
	NextStatus Status
}

// Router decides where a review action sends a request.
type Router interface {
	// Decide returns the next level and status for action taken at level.
	// It must not modify pr.
	Decide(pr *PullRequest, action Action, level Level) (Decision, error)
}

// EscalationPolicy reports whether a level1 approval needs level2 review.
type EscalationPolicy func(pr *PullRequest) bool

// AlwaysEscalate sends every level1 approval to level2.
func AlwaysEscalate(*PullRequest) bool { return true }

// NeverEscalate lets level1 approval finish the workflow.
func NeverEscalate(*PullRequest) bool { return false }

// EscalateAtOrAbove escalates when the snapshot amount reaches threshold.
func EscalateAtOrAbove(threshold int64) EscalationPolicy {
	return func(pr *PullRequest) bool {
		if pr == nil || pr.Snapshot == nil {
			return true
		}
		return pr.Snapshot.Amount >= threshold
	}
}

// TableRouter is the stateless two-level router.
type TableRouter struct {
	escalate EscalationPolicy
}

// NewTableRouter creates a router. A nil policy means AlwaysEscalate.
func NewTableRouter(policy EscalationPolicy) *TableRouter {
	if policy == nil {
		policy = AlwaysEscalate
	}
	return &TableRouter{escalate: policy}
}

// Decide implements Router.
func (r *TableRouter) Decide(pr *PullRequest, action Action, level Level) (Decision, error) {
	from := StatusPending
	if pr != nil {
		from = pr.Status
	}

	switch action {
	case ActionApprove:
		switch level {
		case Level1:
			if r.escalate(pr) {
				return Decision{NextLevel: Level2, NextStatus: StatusReviewing}, nil
			}
			return Decision{NextLevel: LevelNone, NextStatus: StatusApproved}, nil
		case Level2:
			return Decision{NextLevel: LevelNone, NextStatus: StatusApproved}, nil
		}
	case ActionReject:
		if level.IsValid() {
			return Decision{NextLevel: LevelNone, NextStatus: StatusRejected}, nil
		}
	case ActionReturn:
		if level.IsValid() {
			return Decision{NextLevel: LevelNone, NextStatus: StatusReturned}, nil
		}
	}
	return Decision{}, invalidTransition(from, action, level)
}

var _ Router = (*TableRouter)(nil)
