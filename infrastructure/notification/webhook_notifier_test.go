package notification

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/felixgeelhaar/promote/domain/notification"
)

func notifierConfig(endpoints ...*notification.Endpoint) WebhookNotifierConfig {
	cfg := DefaultWebhookNotifierConfig()
	cfg.Endpoints = endpoints
	cfg.SenderConfig.RetryDelay = time.Millisecond
	return cfg
}

func TestWebhookNotifier_Notify(t *testing.T) {
	t.Parallel()

	rec, srv := newRecorder(t, http.StatusOK)
	w := NewWebhookNotifier(notifierConfig(&notification.Endpoint{URL: srv.URL, Enabled: true}))
	defer w.Close()

	if err := w.Notify(context.Background(), newEvent(t, "evt-1", notification.EventSubmitted)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if rec.events() != 1 {
		t.Errorf("delivered %d events, want 1", rec.events())
	}
}

func TestWebhookNotifier_Batching(t *testing.T) {
	t.Parallel()

	rec, srv := newRecorder(t, http.StatusOK)
	cfg := notifierConfig(&notification.Endpoint{URL: srv.URL, Enabled: true})
	cfg.EnableBatching = true
	cfg.BatcherConfig = BatcherConfig{MaxBatchSize: 10, MaxWait: time.Hour}
	w := NewWebhookNotifier(cfg)
	ctx := context.Background()

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if err := w.Notify(ctx, newEvent(t, id, notification.EventSubmitted)); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}
	if rec.count() != 0 {
		t.Fatalf("batched events were sent early: %d batches", rec.count())
	}

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if rec.count() != 1 || rec.events() != 3 {
		t.Errorf("got %d batches / %d events, want 1 / 3", rec.count(), rec.events())
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWebhookNotifier_Filters(t *testing.T) {
	t.Parallel()

	approvals, approvalsSrv := newRecorder(t, http.StatusOK)
	everything, everythingSrv := newRecorder(t, http.StatusOK)
	disabled, disabledSrv := newRecorder(t, http.StatusOK)

	cfg := notifierConfig(
		&notification.Endpoint{URL: approvalsSrv.URL, Enabled: true, Filter: notification.FilterByType(notification.EventApproved)},
		&notification.Endpoint{URL: everythingSrv.URL, Enabled: true},
		&notification.Endpoint{URL: disabledSrv.URL, Enabled: false},
	)
	cfg.GlobalFilter = func(e *notification.Event) bool { return e.Type != notification.EventCreated }
	w := NewWebhookNotifier(cfg)
	defer w.Close()

	events := []*notification.Event{
		newEvent(t, "evt-1", notification.EventCreated),
		newEvent(t, "evt-2", notification.EventSubmitted),
		newEvent(t, "evt-3", notification.EventApproved),
	}
	if err := w.NotifyBatch(context.Background(), events); err != nil {
		t.Fatalf("NotifyBatch() error = %v", err)
	}

	if approvals.events() != 1 {
		t.Errorf("approval endpoint got %d events, want 1", approvals.events())
	}
	if everything.events() != 2 {
		t.Errorf("unfiltered endpoint got %d events, want 2 (created is filtered globally)", everything.events())
	}
	if disabled.count() != 0 {
		t.Error("disabled endpoint should not be called")
	}
}

func TestWebhookNotifier_ReportsFailure(t *testing.T) {
	t.Parallel()

	_, srv := newRecorder(t, http.StatusForbidden)
	w := NewWebhookNotifier(notifierConfig(&notification.Endpoint{URL: srv.URL, Enabled: true}))
	defer w.Close()

	err := w.Notify(context.Background(), newEvent(t, "evt-1", notification.EventSubmitted))
	if !errors.Is(err, notification.ErrEndpointRejected) {
		t.Errorf("Notify() error = %v, want ErrEndpointRejected", err)
	}
}

func TestWebhookNotifier_Endpoints(t *testing.T) {
	t.Parallel()

	w := NewWebhookNotifier(notifierConfig())
	w.AddEndpoint(&notification.Endpoint{URL: "http://a.example", Enabled: true})
	w.AddEndpoint(&notification.Endpoint{URL: "http://b.example", Enabled: true})
	w.RemoveEndpoint("http://a.example")

	eps := w.Endpoints()
	if len(eps) != 1 || eps[0].URL != "http://b.example" {
		t.Errorf("Endpoints() = %v, want only b.example", eps)
	}
}

func TestWebhookNotifier_Closed(t *testing.T) {
	t.Parallel()

	w := NewWebhookNotifier(notifierConfig())
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Notify(context.Background(), newEvent(t, "evt-1", notification.EventSubmitted)); !errors.Is(err, notification.ErrNotifierClosed) {
		t.Errorf("Notify() after Close error = %v, want ErrNotifierClosed", err)
	}
}
