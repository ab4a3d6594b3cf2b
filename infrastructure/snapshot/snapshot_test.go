package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

func testSnapshot(id string) *promotion.ProjectSnapshot {
	return &promotion.ProjectSnapshot{
		ProjectID:    id,
		ProjectName:  "Harbour Office",
		Amount:       880_000,
		BuildingArea: 1200,
		Completeness: 90,
		SubProjects:  []promotion.SubProject{{ID: "b1", Name: "Tower", Amount: 880_000}},
	}
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	p := NewStaticProvider(testSnapshot("p1"))
	ctx := context.Background()

	got, err := p.FetchSnapshot(ctx, "p1")
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	got.SubProjects[0].Name = "mutated"

	again, _ := p.FetchSnapshot(ctx, "p1")
	if again.SubProjects[0].Name != "Tower" {
		t.Error("FetchSnapshot must return a copy")
	}

	if _, err := p.FetchSnapshot(ctx, "missing"); !errors.Is(err, promotion.ErrNotFound) {
		t.Errorf("missing project error = %v, want ErrNotFound", err)
	}

	updated := testSnapshot("p1")
	updated.Completeness = 40
	p.Put(updated)
	if got, _ := p.FetchSnapshot(ctx, "p1"); got.Completeness != 40 {
		t.Errorf("Completeness = %d after Put, want 40", got.Completeness)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "snapshots.json")
	data, _ := json.Marshal([]*promotion.ProjectSnapshot{testSnapshot("p1"), testSnapshot("p2")})
	if err := os.WriteFile(good, data, 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadFile(good)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if _, err := p.FetchSnapshot(context.Background(), "p2"); err != nil {
		t.Errorf("p2 not loaded: %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"project_id":"","completeness":10}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); !errors.Is(err, promotion.ErrInvalidSnapshot) {
		t.Errorf("invalid snapshot error = %v, want ErrInvalidSnapshot", err)
	}
}

func newTestProvider(t *testing.T, h http.HandlerFunc, mutate func(*HTTPConfig)) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := HTTPConfig{
		BaseURL:     srv.URL + "/api/",
		Token:       "s3cret",
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewHTTPProvider(cfg)
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}
	return p
}

func TestHTTPProvider_Fetch(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/projects/p1/snapshot" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(testSnapshot("p1"))
	}, func(c *HTTPConfig) { c.CircuitBreakerThreshold = 1 })

	if _, err := p.FetchSnapshot(context.Background(), "p9"); !errors.Is(err, promotion.ErrNotFound) {
		t.Errorf("404 error = %v, want ErrNotFound", err)
	}

	// a 404 is an answer, so the breaker stays closed
	got, err := p.FetchSnapshot(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if got.Amount != 880_000 || len(got.SubProjects) != 1 {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestHTTPProvider_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(testSnapshot("p1"))
	}, nil)

	if _, err := p.FetchSnapshot(context.Background(), "p1"); err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestHTTPProvider_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
		calls   int32
	}{
		{
			name:    "rejected is not retried",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) },
			want:    ErrRejected,
			calls:   1,
		},
		{
			name:    "unavailable after retries",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			want:    ErrUnavailable,
			calls:   3,
		},
		{
			name: "invalid payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"project_id":"p1","completeness":140}`))
			},
			want:  promotion.ErrInvalidSnapshot,
			calls: 1,
		},
		{
			name: "wrong project",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(testSnapshot("other"))
			},
			want:  promotion.ErrInvalidSnapshot,
			calls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}, nil)

			_, err := p.FetchSnapshot(context.Background(), "p1")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if calls.Load() != tt.calls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.calls)
			}
		})
	}
}

func TestHTTPProvider_BreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(c *HTTPConfig) {
		c.MaxAttempts = 1
		c.CircuitBreakerThreshold = 2
		c.CircuitBreakerTimeout = time.Minute
	})

	for range 2 {
		_, _ = p.FetchSnapshot(context.Background(), "p1")
	}
	before := calls.Load()

	_, err := p.FetchSnapshot(context.Background(), "p1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("open breaker error = %v, want ErrUnavailable", err)
	}
	if calls.Load() != before {
		t.Error("open breaker must not reach the server")
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	p, err := NewFromConfig(config.SnapshotConfig{})
	if err != nil || p != nil {
		t.Errorf("empty config = (%v, %v), want (nil, nil)", p, err)
	}
	if _, err := NewFromConfig(config.SnapshotConfig{URL: "ftp://data"}); err == nil {
		t.Error("non-http url should fail")
	}
	p, err = NewFromConfig(config.SnapshotConfig{URL: "https://capture.example.com", Timeout: config.Duration(time.Second)})
	if err != nil || p == nil {
		t.Errorf("valid config = (%v, %v)", p, err)
	}
}
