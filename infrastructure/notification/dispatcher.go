package notification

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// DispatcherConfig configures the asynchronous dispatcher.
type DispatcherConfig struct {
	// Workers is the number of delivery goroutines.
	Workers int
	// QueueSize bounds the number of undelivered events.
	QueueSize int
	// Timeout bounds each delivery.
	Timeout time.Duration
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:   4,
		QueueSize: 1024,
		Timeout:   30 * time.Second,
	}
}

// Dispatcher queues events and delivers them to the wrapped notifier from
// a fixed pool of workers. Notify never blocks on delivery; when the queue
// is full the event is dropped and logged.
type Dispatcher struct {
	next    notification.Notifier
	timeout time.Duration
	queue   chan *notification.Event
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the workers.
func NewDispatcher(next notification.Notifier, config DispatcherConfig) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	d := &Dispatcher{
		next:    next,
		timeout: config.Timeout,
		queue:   make(chan *notification.Event, config.QueueSize),
	}
	for i := 0; i < config.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Notify enqueues event.
func (d *Dispatcher) Notify(_ context.Context, event *notification.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return notification.ErrNotifierClosed
	}

	select {
	case d.queue <- event:
	default:
		logging.Warn().
			Add(logging.Component("notification.dispatcher")).
			Add(logging.Str("event_id", event.ID)).
			Add(logging.Str("event_type", string(event.Type))).
			Add(logging.RequestID(event.RequestID)).
			Msg("notification queue full, event dropped")
	}
	return nil
}

// NotifyBatch enqueues each event.
func (d *Dispatcher) NotifyBatch(ctx context.Context, events []*notification.Event) error {
	for _, event := range events {
		if err := d.Notify(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting events, drains the queue and closes the wrapped
// notifier.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return d.next.Close()
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Notify(ctx, event); err != nil {
			logging.Error().
				Add(logging.Component("notification.dispatcher")).
				Add(logging.Str("event_id", event.ID)).
				Add(logging.Str("event_type", string(event.Type))).
				Add(logging.RequestID(event.RequestID)).
				Add(logging.ErrorField(err)).
				Msg("notification delivery failed")
		}
		cancel()
	}
}

var _ notification.Notifier = (*Dispatcher)(nil)
