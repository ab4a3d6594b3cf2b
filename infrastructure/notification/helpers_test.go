package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

func newEvent(t *testing.T, id string, eventType notification.EventType) *notification.Event {
	t.Helper()
	event, err := notification.NewEvent(id, eventType, "pr-1", notification.TransitionPayload{
		Actor: "alice",
		From:  promotion.StatusDraft,
		To:    promotion.StatusPending,
	})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	return event
}

// recorder is a webhook receiver that keeps every delivered batch.
type recorder struct {
	mu      sync.Mutex
	batches [][]*notification.Event
	headers []http.Header
	status  int
}

func newRecorder(t *testing.T, status int) (*recorder, *httptest.Server) {
	t.Helper()
	rec := &recorder{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []*notification.Event
		_ = json.NewDecoder(r.Body).Decode(&batch)

		rec.mu.Lock()
		rec.batches = append(rec.batches, batch)
		rec.headers = append(rec.headers, r.Header.Clone())
		rec.mu.Unlock()

		w.WriteHeader(rec.status)
	}))
	t.Cleanup(srv.Close)
	return rec, srv
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recorder) events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

// captureNotifier records events in memory.
type captureNotifier struct {
	mu     sync.Mutex
	events []*notification.Event
	closed bool
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event *notification.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureNotifier) NotifyBatch(ctx context.Context, events []*notification.Event) error {
	for _, e := range events {
		_ = c.Notify(ctx, e)
	}
	return c.err
}

func (c *captureNotifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureNotifier) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
