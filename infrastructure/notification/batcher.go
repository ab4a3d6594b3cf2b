package notification

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// BatcherConfig configures the event batcher.
type BatcherConfig struct {
	// MaxBatchSize is the maximum number of events per batch.
	MaxBatchSize int
	// MaxWait is the maximum time an event waits before its batch is sent.
	MaxWait time.Duration
	// OnBatch is called when a batch is ready to send.
	OnBatch func(ctx context.Context, events []*notification.Event) error
}

// DefaultBatcherConfig returns a sensible default configuration.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		MaxBatchSize: 50,
		MaxWait:      2 * time.Second,
	}
}

// Batcher accumulates events and flushes them in batches.
type Batcher struct {
	config BatcherConfig
	mu     sync.Mutex
	events []*notification.Event
	timer  *time.Timer
	closed bool
}

// NewBatcher creates a new event batcher.
func NewBatcher(config BatcherConfig) *Batcher {
	defaults := DefaultBatcherConfig()
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	if config.MaxWait <= 0 {
		config.MaxWait = defaults.MaxWait
	}

	return &Batcher{
		config: config,
		events: make([]*notification.Event, 0, config.MaxBatchSize),
	}
}

// Add queues event. A full batch is sent synchronously on the caller's
// context; otherwise the batch is sent when MaxWait elapses.
func (b *Batcher) Add(ctx context.Context, event *notification.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return notification.ErrNotifierClosed
	}

	b.events = append(b.events, event)
	if len(b.events) == 1 && b.timer == nil {
		b.timer = time.AfterFunc(b.config.MaxWait, b.flushOnTimer)
	}

	var batch []*notification.Event
	if len(b.events) >= b.config.MaxBatchSize {
		batch = b.takeLocked()
	}
	b.mu.Unlock()

	return b.send(ctx, batch)
}

// Flush sends any pending events immediately.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()

	return b.send(ctx, batch)
}

// Close stops accepting events and flushes what is pending.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	batch := b.takeLocked()
	b.mu.Unlock()

	return b.send(ctx, batch)
}

// PendingCount returns the number of events waiting to be flushed.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// flushOnTimer runs detached from any request, so it uses its own context.
func (b *Batcher) flushOnTimer() {
	if err := b.Flush(context.Background()); err != nil {
		logging.Error().
			Add(logging.Component("notification.batcher")).
			Add(logging.ErrorField(err)).
			Msg("timed batch delivery failed")
	}
}

func (b *Batcher) takeLocked() []*notification.Event {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.events) == 0 {
		return nil
	}

	batch := make([]*notification.Event, len(b.events))
	copy(batch, b.events)
	b.events = b.events[:0]
	return batch
}

func (b *Batcher) send(ctx context.Context, batch []*notification.Event) error {
	if len(batch) == 0 || b.config.OnBatch == nil {
		return nil
	}
	return b.config.OnBatch(ctx, batch)
}
