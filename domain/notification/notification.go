// Package notification provides domain models for promotion notifications.
package notification

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// EventType represents the type of notification event.
type EventType = promotion.EventType

// Event types delivered to notification endpoints.
const (
	EventCreated   = promotion.EventCreated
	EventSubmitted = promotion.EventSubmitted
	EventWithdrawn = promotion.EventWithdrawn
	EventEscalated = promotion.EventEscalated
	EventApproved  = promotion.EventApproved
	EventRejected  = promotion.EventRejected
	EventReturned  = promotion.EventReturned
	EventDeleted   = promotion.EventDeleted
)

// Event represents a notification about a committed promotion change.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`
	// Type is the event type.
	Type EventType `json:"type"`
	// Timestamp is when the change was committed.
	Timestamp time.Time `json:"timestamp"`
	// RequestID is the promotion request the event concerns.
	RequestID string `json:"request_id"`
	// Payload contains the event-specific data.
	Payload json.RawMessage `json:"payload"`
}

// TransitionPayload describes a status change of a promotion request.
type TransitionPayload struct {
	Actor       string                `json:"actor"`
	From        promotion.Status      `json:"from,omitempty"`
	To          promotion.Status      `json:"to,omitempty"`
	Level       promotion.Level       `json:"level,omitempty"`
	Comment     string                `json:"comment,omitempty"`
	Applicant   string                `json:"applicant,omitempty"`
	TargetSpace promotion.TargetSpace `json:"target_space,omitempty"`
	ProjectID   string                `json:"project_id,omitempty"`
	Title       string                `json:"title,omitempty"`
}

// ApprovedPayload carries the approved snapshot so receivers can import it
// into the target space.
type ApprovedPayload struct {
	TransitionPayload
	Snapshot *promotion.ProjectSnapshot `json:"snapshot"`
}

// NewEvent creates a new notification event.
func NewEvent(id string, eventType EventType, requestID string, payload any) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now(),
		RequestID: requestID,
		Payload:   payloadBytes,
	}, nil
}

// FromTransition builds the notification for a committed lifecycle event.
// pr is the request after the change, or before it for deletes.
func FromTransition(id string, ev promotion.Event, pr *promotion.PullRequest) (*Event, error) {
	payload := TransitionPayload{
		Actor:   ev.Actor,
		From:    ev.From,
		To:      ev.To,
		Level:   ev.Level,
		Comment: ev.Comment,
	}
	if pr != nil {
		payload.Applicant = pr.Applicant
		payload.TargetSpace = pr.TargetSpace
		payload.Title = pr.Title
		if pr.Snapshot != nil {
			payload.ProjectID = pr.Snapshot.ProjectID
		}
	}

	var body any = payload
	if ev.Type == EventApproved && pr != nil {
		body = ApprovedPayload{TransitionPayload: payload, Snapshot: pr.Snapshot}
	}

	event, err := NewEvent(id, ev.Type, ev.RequestID, body)
	if err != nil {
		return nil, err
	}
	if !ev.Timestamp.IsZero() {
		event.Timestamp = ev.Timestamp
	}
	return event, nil
}

// DecodePayload unmarshals the event payload into the given struct.
func (e *Event) DecodePayload(v any) error {
	if e.Payload == nil {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
