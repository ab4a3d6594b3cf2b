// Package promotion provides the data-promotion request domain: the
// request entity, its lifecycle, review routing and completeness gating.
package promotion

// Status represents the lifecycle state of a promotion request.
type Status string

const (
	// StatusDraft is the initial state; the request is editable and deletable.
	StatusDraft Status = "draft"

	// StatusPending indicates the request was submitted and awaits level1 review.
	StatusPending Status = "pending"

	// StatusReviewing indicates the request is held by a reviewer at CurrentLevel.
	StatusReviewing Status = "reviewing"

	// StatusApproved indicates the data was accepted into the target space.
	StatusApproved Status = "approved"

	// StatusRejected indicates the request was refused.
	StatusRejected Status = "rejected"

	// StatusReturned indicates the request was sent back to the applicant.
	StatusReturned Status = "returned"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusPending,
	StatusReviewing,
	StatusApproved,
	StatusRejected,
	StatusReturned,
}

// IsValid returns true if s is a known status.
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AwaitsReview returns true if a reviewer can act on the request.
func (s Status) AwaitsReview() bool {
	return s == StatusPending || s == StatusReviewing
}

// Level is a review level. The zero value means no level is active.
type Level string

const (
	// LevelNone means no review level is active.
	LevelNone Level = ""

	// Level1 is the first review level.
	Level1 Level = "level1"

	// Level2 is the escalated review level.
	Level2 Level = "level2"
)

// IsValid returns true for level1 and level2.
func (l Level) IsValid() bool {
	return l == Level1 || l == Level2
}

// Action identifies an operation applied to a request.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionWithdraw Action = "withdraw"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionReturn   Action = "return"
	ActionDelete   Action = "delete"
)

// IsReview returns true for actions taken by a reviewer.
func (a Action) IsReview() bool {
	return a == ActionApprove || a == ActionReject || a == ActionReturn
}

// RequiresComment returns true if the action must carry a reviewer comment.
func (a Action) RequiresComment() bool {
	return a == ActionReject || a == ActionReturn
}

// IsValid returns true if a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionSubmit, ActionWithdraw, ActionApprove, ActionReject, ActionReturn, ActionDelete:
		return true
	}
	return false
}

// TargetSpace is the shared data space a request promotes into.
type TargetSpace string

const (
	SpaceEnterprise TargetSpace = "enterprise"
	SpaceDepartment TargetSpace = "department"
	SpacePersonal   TargetSpace = "personal"
)

// IsValid returns true if t is a known target space.
func (t TargetSpace) IsValid() bool {
	return t == SpaceEnterprise || t == SpaceDepartment || t == SpacePersonal
}

// Transitions lists the actions accepted in each status. Pairs absent from
// this table are rejected with an InvalidTransitionError. Where an action
// lands is decided by the Engine (and the Router for review actions).
var Transitions = map[Status][]Action{
	StatusDraft:     {ActionSubmit, ActionDelete},
	StatusPending:   {ActionWithdraw, ActionApprove, ActionReject, ActionReturn},
	StatusReviewing: {ActionApprove, ActionReject, ActionReturn},
	StatusReturned:  {ActionWithdraw, ActionSubmit},
	StatusApproved:  {},
	StatusRejected:  {},
}

// Allows returns true if action is accepted in status s.
func (s Status) Allows(action Action) bool {
	for _, a := range Transitions[s] {
		if a == action {
			return true
		}
	}
	return false
}
