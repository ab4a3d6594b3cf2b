package notification

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// WebhookNotifierConfig configures the webhook notifier.
type WebhookNotifierConfig struct {
	// Endpoints are the webhook endpoints to notify.
	Endpoints []*notification.Endpoint
	// EnableBatching enables event batching.
	EnableBatching bool
	// BatcherConfig configures the batcher (if enabled).
	BatcherConfig BatcherConfig
	// SenderConfig configures the HTTP sender.
	SenderConfig SenderConfig
	// GlobalFilter is applied to all events before endpoint filters.
	GlobalFilter notification.EventFilter
}

// DefaultWebhookNotifierConfig returns sensible defaults.
func DefaultWebhookNotifierConfig() WebhookNotifierConfig {
	return WebhookNotifierConfig{
		BatcherConfig: DefaultBatcherConfig(),
		SenderConfig:  DefaultSenderConfig(),
	}
}

// WebhookNotifier posts promotion events to the configured endpoints.
type WebhookNotifier struct {
	filter  notification.EventFilter
	sender  *Sender
	batcher *Batcher

	mu        sync.RWMutex
	endpoints []*notification.Endpoint
	closed    bool
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(config WebhookNotifierConfig) *WebhookNotifier {
	w := &WebhookNotifier{
		filter:    config.GlobalFilter,
		sender:    NewSender(config.SenderConfig),
		endpoints: append([]*notification.Endpoint(nil), config.Endpoints...),
	}

	if config.EnableBatching {
		batcherConfig := config.BatcherConfig
		batcherConfig.OnBatch = w.deliver
		w.batcher = NewBatcher(batcherConfig)
	}

	return w
}

// Notify sends a single event to all matching endpoints.
func (w *WebhookNotifier) Notify(ctx context.Context, event *notification.Event) error {
	return w.NotifyBatch(ctx, []*notification.Event{event})
}

// NotifyBatch sends events to all matching endpoints.
func (w *WebhookNotifier) NotifyBatch(ctx context.Context, events []*notification.Event) error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return notification.ErrNotifierClosed
	}

	filtered := make([]*notification.Event, 0, len(events))
	for _, event := range events {
		if w.filter == nil || w.filter(event) {
			filtered = append(filtered, event)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	if w.batcher == nil {
		return w.deliver(ctx, filtered)
	}
	for _, event := range filtered {
		if err := w.batcher.Add(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Flush immediately sends any pending batched events.
func (w *WebhookNotifier) Flush(ctx context.Context) error {
	if w.batcher == nil {
		return nil
	}
	return w.batcher.Flush(ctx)
}

// Close flushes pending events and closes the notifier.
func (w *WebhookNotifier) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	if w.batcher != nil {
		return w.batcher.Close(context.Background())
	}
	return nil
}

// AddEndpoint adds an endpoint.
func (w *WebhookNotifier) AddEndpoint(endpoint *notification.Endpoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.endpoints = append(w.endpoints, endpoint)
}

// RemoveEndpoint removes an endpoint by URL.
func (w *WebhookNotifier) RemoveEndpoint(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.endpoints[:0:0]
	for _, ep := range w.endpoints {
		if ep.URL != url {
			kept = append(kept, ep)
		}
	}
	w.endpoints = kept
}

// Endpoints returns a copy of the configured endpoints.
func (w *WebhookNotifier) Endpoints() []*notification.Endpoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*notification.Endpoint(nil), w.endpoints...)
}

// BreakerState returns the circuit breaker state of an endpoint.
func (w *WebhookNotifier) BreakerState(url string) string {
	return w.sender.BreakerState(url)
}

// deliver fans events out to every enabled endpoint in parallel and
// returns the first failure.
func (w *WebhookNotifier) deliver(ctx context.Context, events []*notification.Event) error {
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)

	for _, endpoint := range w.Endpoints() {
		if !endpoint.Enabled {
			continue
		}

		matched := events
		if endpoint.Filter != nil {
			matched = make([]*notification.Event, 0, len(events))
			for _, event := range events {
				if endpoint.Filter(event) {
					matched = append(matched, event)
				}
			}
		}
		if len(matched) == 0 {
			continue
		}

		wg.Add(1)
		go func(ep *notification.Endpoint, batch []*notification.Event) {
			defer wg.Done()

			if err := w.sender.SendBatch(ctx, ep, batch); err != nil {
				logging.Error().
					Add(logging.Component("notification.webhook")).
					Add(logging.Str("endpoint", ep.URL)).
					Add(logging.Str("endpoint_name", ep.Name)).
					Add(logging.Int("event_count", len(batch))).
					Add(logging.ErrorField(err)).
					Msg("webhook delivery failed")

				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}

			logging.Debug().
				Add(logging.Component("notification.webhook")).
				Add(logging.Str("endpoint", ep.URL)).
				Add(logging.Int("event_count", len(batch))).
				Msg("webhook delivered")
		}(endpoint, matched)
	}

	wg.Wait()
	return firstErr
}

var _ notification.Notifier = (*WebhookNotifier)(nil)
