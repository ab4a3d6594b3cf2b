package notification

import (
	"context"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// LogNotifier writes every event to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a log notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify implements notification.Notifier.
func (LogNotifier) Notify(_ context.Context, event *notification.Event) error {
	var payload notification.TransitionPayload
	_ = event.DecodePayload(&payload)

	logging.Info().
		Add(logging.Component("notification.log")).
		Add(logging.Str("event_id", event.ID)).
		Add(logging.Str("event_type", string(event.Type))).
		Add(logging.RequestID(event.RequestID)).
		Add(logging.Actor(payload.Actor)).
		Add(logging.FromStatus(payload.From)).
		Add(logging.ToStatus(payload.To)).
		Msg("promotion event")
	return nil
}

// NotifyBatch implements notification.Notifier.
func (l LogNotifier) NotifyBatch(ctx context.Context, events []*notification.Event) error {
	for _, event := range events {
		_ = l.Notify(ctx, event)
	}
	return nil
}

// Close implements notification.Notifier.
func (LogNotifier) Close() error { return nil }

var _ notification.Notifier = LogNotifier{}
