// Package statemachine provides the statekit integration for review routing.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// Context carries one routing decision through the review chart.
type Context struct {
	// Request is the request under review. Read only.
	Request *promotion.PullRequest

	// Escalate is the escalation policy's verdict for Request.
	Escalate bool

	// Fired is the event whose transition ran, empty if none did.
	Fired statekit.EventType
}

const machineID = "promotion-review"

// State IDs of the review chart. Only review states are modelled; draft
// and submission are handled by the engine's transition table.
const (
	stateLevel1   statekit.StateID = "level1"
	stateLevel2   statekit.StateID = "level2"
	stateApproved statekit.StateID = statekit.StateID(promotion.StatusApproved)
	stateRejected statekit.StateID = statekit.StateID(promotion.StatusRejected)
	stateReturned statekit.StateID = statekit.StateID(promotion.StatusReturned)
)

// Review chart events.
const (
	EventApprove  statekit.EventType = "APPROVE"
	EventEscalate statekit.EventType = "ESCALATE"
	EventReject   statekit.EventType = "REJECT"
	EventReturn   statekit.EventType = "RETURN"
)

// NewReviewMachine creates the two-level review statechart.
func NewReviewMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context](machineID).
		WithInitial(stateLevel1).
		WithContext(&Context{}).
		WithAction("record", recordFired).
		WithGuard("escalate", guardEscalate).
		State(stateLevel1).
			On(EventEscalate).Target(stateLevel2).Guard("escalate").Do("record").
			On(EventApprove).Target(stateApproved).Do("record").
			On(EventReject).Target(stateRejected).Do("record").
			On(EventReturn).Target(stateReturned).Do("record").
			Done().
		State(stateLevel2).
			On(EventApprove).Target(stateApproved).Do("record").
			On(EventReject).Target(stateRejected).Do("record").
			On(EventReturn).Target(stateReturned).Do("record").
			Done().
		State(stateApproved).
			Final().
			Done().
		State(stateRejected).
			Final().
			Done().
		State(stateReturned).
			Final().
			Done().
		Build()
}

// EventFor maps a review action to the chart event. escalate selects
// ESCALATE over APPROVE.
func EventFor(action promotion.Action, escalate bool) (statekit.EventType, bool) {
	switch action {
	case promotion.ActionApprove:
		if escalate {
			return EventEscalate, true
		}
		return EventApprove, true
	case promotion.ActionReject:
		return EventReject, true
	case promotion.ActionReturn:
		return EventReturn, true
	}
	return "", false
}

// stateForLevel returns the chart state holding a request at level.
func stateForLevel(level promotion.Level) (statekit.StateID, bool) {
	switch level {
	case promotion.Level1:
		return stateLevel1, true
	case promotion.Level2:
		return stateLevel2, true
	}
	return "", false
}

// decisionFor converts a chart state into the router's verdict.
func decisionFor(state statekit.StateID) (promotion.Decision, bool) {
	switch state {
	case stateLevel1:
		return promotion.Decision{NextLevel: promotion.Level1, NextStatus: promotion.StatusPending}, true
	case stateLevel2:
		return promotion.Decision{NextLevel: promotion.Level2, NextStatus: promotion.StatusReviewing}, true
	case stateApproved, stateRejected, stateReturned:
		return promotion.Decision{NextLevel: promotion.LevelNone, NextStatus: promotion.Status(state)}, true
	}
	return promotion.Decision{}, false
}
