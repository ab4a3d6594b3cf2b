package notification

import (
	"context"
)

// Notifier delivers promotion events to subscribers.
type Notifier interface {
	Notify(ctx context.Context, event *Event) error
	NotifyBatch(ctx context.Context, events []*Event) error
	Close() error
}

// EventFilter reports whether an event should be delivered.
type EventFilter func(event *Event) bool

func setOf[T comparable](items []T) map[T]struct{} {
	set := make(map[T]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// FilterByType passes events whose type is one of types.
func FilterByType(types ...EventType) EventFilter {
	allowed := setOf(types)
	return func(event *Event) bool {
		_, ok := allowed[event.Type]
		return ok
	}
}

// FilterByRequestID passes events about one of the given requests.
func FilterByRequestID(ids ...string) EventFilter {
	allowed := setOf(ids)
	return func(event *Event) bool {
		_, ok := allowed[event.RequestID]
		return ok
	}
}

// CombineFilters passes an event only when every filter does. Evaluation
// stops at the first filter that refuses it.
func CombineFilters(filters ...EventFilter) EventFilter {
	return func(event *Event) bool {
		for _, accept := range filters {
			if !accept(event) {
				return false
			}
		}
		return true
	}
}

// Endpoint is a webhook subscriber. Payloads are signed with Secret when it
// is set; Filter, when non-nil, narrows the events the endpoint receives.
type Endpoint struct {
	Name    string            `json:"name,omitempty"`
	URL     string            `json:"url"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Enabled bool              `json:"enabled"`
	Filter  EventFilter       `json:"-"`
}

// Multi fans an event out to several notifiers. Every notifier is tried;
// the first error is returned.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event *Event) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NotifyBatch implements Notifier.
func (m Multi) NotifyBatch(ctx context.Context, events []*Event) error {
	var first error
	for _, n := range m {
		if err := n.NotifyBatch(ctx, events); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Notifier.
func (m Multi) Close() error {
	var first error
	for _, n := range m {
		if err := n.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
