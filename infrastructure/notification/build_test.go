package notification

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/notification"
)

func TestEndpointsFromConfig(t *testing.T) {
	t.Parallel()

	eps, err := EndpointsFromConfig([]config.EndpointConfig{
		{Name: "audit", URL: "https://audit.example/hook", Enabled: true, Secret: "x"},
		{URL: "http://ops.example", Enabled: true, EventFilter: []string{"promotion.approved"}},
	})
	if err != nil {
		t.Fatalf("EndpointsFromConfig() error = %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("len = %d, want 2", len(eps))
	}
	if eps[0].Filter != nil || eps[0].Secret != "x" || eps[0].Name != "audit" {
		t.Errorf("first endpoint = %+v", eps[0])
	}
	if eps[1].Filter == nil {
		t.Fatal("second endpoint should carry a type filter")
	}
	if eps[1].Filter(&notification.Event{Type: notification.EventSubmitted}) {
		t.Error("filter should reject promotion.submitted")
	}

	for _, bad := range []string{"", "ftp://x", "http://", "::"} {
		if _, err := EndpointsFromConfig([]config.EndpointConfig{{URL: bad}}); !errors.Is(err, notification.ErrInvalidEndpoint) {
			t.Errorf("URL %q: error = %v, want ErrInvalidEndpoint", bad, err)
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	n, err := NewFromConfig(config.NotificationConfig{})
	if err != nil || n != nil {
		t.Errorf("disabled config = (%v, %v), want (nil, nil)", n, err)
	}

	rec, srv := newRecorder(t, http.StatusOK)
	n, err = NewFromConfig(config.NotificationConfig{
		Enabled:   true,
		Log:       true,
		Endpoints: []config.EndpointConfig{{URL: srv.URL, Enabled: true}},
	})
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	if _, ok := n.(*Dispatcher); !ok {
		t.Fatalf("NewFromConfig() = %T, want *Dispatcher", n)
	}

	if err := n.Notify(context.Background(), newEvent(t, "evt-1", notification.EventApproved)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if rec.events() != 1 {
		t.Errorf("webhook received %d events, want 1", rec.events())
	}
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	l := NewLogNotifier()
	events := []*notification.Event{newEvent(t, "evt-1", notification.EventReturned)}
	if err := l.NotifyBatch(context.Background(), events); err != nil {
		t.Errorf("NotifyBatch() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
