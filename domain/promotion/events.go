package promotion

import "time"

// EventType identifies promotion lifecycle events.
type EventType string

const (
	// EventCreated is emitted when a draft request is created.
	EventCreated EventType = "promotion.created"

	// EventSubmitted is emitted when a request enters level1 review.
	EventSubmitted EventType = "promotion.submitted"

	// EventWithdrawn is emitted when the applicant pulls a request back to draft.
	EventWithdrawn EventType = "promotion.withdrawn"

	// EventEscalated is emitted when a level1 approval moves the request to level2.
	EventEscalated EventType = "promotion.escalated"

	// EventApproved is emitted when the request reaches approved.
	EventApproved EventType = "promotion.approved"

	// EventRejected is emitted when the request is rejected.
	EventRejected EventType = "promotion.rejected"

	// EventReturned is emitted when a reviewer returns the request to the applicant.
	EventReturned EventType = "promotion.returned"

	// EventDeleted is emitted when a draft is deleted.
	EventDeleted EventType = "promotion.deleted"
)

// Event describes a committed change to a promotion request.
type Event struct {
	// Type identifies the event.
	Type EventType `json:"type"`

	// RequestID is the request this event relates to.
	RequestID string `json:"request_id"`

	// Timestamp is when the change was applied.
	Timestamp time.Time `json:"timestamp"`

	// Actor is who triggered the change.
	Actor string `json:"actor"`

	// From is the status before the change.
	From Status `json:"from,omitempty"`

	// To is the status after the change.
	To Status `json:"to,omitempty"`

	// Level is the review level after the change.
	Level Level `json:"level,omitempty"`

	// Comment is the reviewer comment, if any.
	Comment string `json:"comment,omitempty"`
}

// eventTypeFor maps an applied action and its destination to an event type.
func eventTypeFor(action Action, to Status) EventType {
	switch action {
	case ActionSubmit:
		return EventSubmitted
	case ActionWithdraw:
		return EventWithdrawn
	case ActionApprove:
		if to == StatusReviewing {
			return EventEscalated
		}
		return EventApproved
	case ActionReject:
		return EventRejected
	case ActionReturn:
		return EventReturned
	case ActionDelete:
		return EventDeleted
	}
	return EventType("promotion." + string(action))
}
