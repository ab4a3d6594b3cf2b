package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/storage/memory"
	"github.com/felixgeelhaar/promote/infrastructure/storage/storetest"
)

var errDown = errors.New("connection refused")

// flakyStore fails the next n calls with errDown before delegating.
type flakyStore struct {
	promotion.Store
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyStore) fail() error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errDown
	}
	return nil
}

func (f *flakyStore) Create(ctx context.Context, pr *promotion.PullRequest) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.Create(ctx, pr)
}

func (f *flakyStore) Get(ctx context.Context, id string) (*promotion.PullRequest, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, id)
}

func (f *flakyStore) Mutate(ctx context.Context, id string, fn promotion.MutateFunc) (*promotion.PullRequest, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Store.Mutate(ctx, id, fn)
}

func (f *flakyStore) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	if err := f.fail(); err != nil {
		return nil, 0, err
	}
	return f.Store.List(ctx, filter)
}

func testConfig() StoreConfig {
	return StoreConfig{
		MaxConcurrent:           8,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   time.Minute,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       time.Millisecond,
		RetryBackoffMultiplier:  1.5,
	}
}

func TestStore_Conformance(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) promotion.Store {
		return NewStore(memory.NewRequestStore(), DefaultStoreConfig())
	})
}

func TestStore_ReadsAreRetried(t *testing.T) {
	t.Parallel()

	inner := &flakyStore{Store: memory.NewRequestStore()}
	s := NewStore(inner, testConfig())
	ctx := context.Background()

	if err := s.Create(ctx, storetest.NewRequest("r1", "alice", 0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	inner.failures.Store(2)
	inner.calls.Store(0)

	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get() error = %v, want retry to succeed", err)
	}
	if got.ID != "r1" {
		t.Errorf("Get() ID = %q, want r1", got.ID)
	}
	if calls := inner.calls.Load(); calls != 3 {
		t.Errorf("inner calls = %d, want 3", calls)
	}
}

func TestStore_WritesAreNotRetried(t *testing.T) {
	t.Parallel()

	inner := &flakyStore{Store: memory.NewRequestStore()}
	s := NewStore(inner, testConfig())

	inner.failures.Store(1)
	err := s.Create(context.Background(), storetest.NewRequest("r1", "alice", 0))
	if !errors.Is(err, promotion.ErrStoreUnavailable) {
		t.Fatalf("Create() error = %v, want ErrStoreUnavailable", err)
	}
	if !errors.Is(err, errDown) {
		t.Errorf("Create() error = %v, want the cause to be kept", err)
	}
	if calls := inner.calls.Load(); calls != 1 {
		t.Errorf("inner calls = %d, want 1", calls)
	}
	if _, err := s.Get(context.Background(), "r1"); !errors.Is(err, promotion.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_DomainErrorsPassThrough(t *testing.T) {
	t.Parallel()

	inner := &flakyStore{Store: memory.NewRequestStore()}
	s := NewStore(inner, testConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, promotion.ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
	}
	if calls := inner.calls.Load(); calls != 10 {
		t.Errorf("inner calls = %d, want 10 (not found must not be retried)", calls)
	}

	if err := s.Create(ctx, storetest.NewRequest("r1", "alice", 0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	sentinel := errors.New("caller says no")
	for i := 0; i < 5; i++ {
		_, err := s.Mutate(ctx, "r1", func(*promotion.PullRequest) (*promotion.PullRequest, error) {
			return nil, sentinel
		})
		if err != sentinel {
			t.Fatalf("Mutate() error = %v, want the callback error unchanged", err)
		}
	}

	if _, err := s.Get(ctx, "r1"); err != nil {
		t.Errorf("breaker should stay closed after domain errors, Get() error = %v", err)
	}
}

func TestStore_BreakerOpens(t *testing.T) {
	t.Parallel()

	inner := &flakyStore{Store: memory.NewRequestStore()}
	cfg := testConfig()
	cfg.RetryMaxAttempts = 1
	s := NewStore(inner, cfg)
	ctx := context.Background()

	inner.failures.Store(1000)
	for i := 0; i < 3; i++ {
		if _, _, err := s.List(ctx, promotion.ListFilter{}); !errors.Is(err, promotion.ErrStoreUnavailable) {
			t.Fatalf("List() error = %v, want ErrStoreUnavailable", err)
		}
	}

	before := inner.calls.Load()
	_, _, err := s.List(ctx, promotion.ListFilter{})
	if !errors.Is(err, promotion.ErrStoreUnavailable) {
		t.Fatalf("List() with open circuit error = %v, want ErrStoreUnavailable", err)
	}
	if after := inner.calls.Load(); after != before {
		t.Errorf("open circuit reached the store: calls %d -> %d", before, after)
	}
}

func TestStore_CallerCancellation(t *testing.T) {
	t.Parallel()

	s := NewStore(memory.NewRequestStore(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "r1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, promotion.ErrStoreUnavailable) {
		t.Error("caller cancellation must not be reported as store unavailable")
	}
}

func TestIsInfra(t *testing.T) {
	t.Parallel()

	live := context.Background()
	done, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		parent context.Context
		err    error
		want   bool
	}{
		{"nil", live, nil, false},
		{"not found", live, promotion.ErrNotFound, false},
		{"invalid transition", live, &promotion.InvalidTransitionError{From: promotion.StatusApproved, Action: promotion.ActionApprove}, false},
		{"callback", live, &callbackError{err: errDown}, false},
		{"unknown", live, errDown, true},
		{"unavailable", live, promotion.ErrStoreUnavailable, true},
		{"own timeout", live, context.DeadlineExceeded, true},
		{"caller canceled", done, context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isInfra(tt.parent, tt.err); got != tt.want {
				t.Errorf("isInfra(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultStoreConfig()
	for _, opt := range []Option{
		WithMaxConcurrent(2),
		WithCircuitBreakerThreshold(7),
		WithCircuitBreakerTimeout(time.Second),
		WithRetryAttempts(4),
		WithRetryDelay(time.Millisecond),
		WithTimeout(2 * time.Second),
	} {
		opt(&cfg)
	}

	if cfg.MaxConcurrent != 2 || cfg.CircuitBreakerThreshold != 7 || cfg.RetryMaxAttempts != 4 {
		t.Errorf("options not applied: %+v", cfg)
	}
	if cfg.CircuitBreakerTimeout != time.Second || cfg.RetryInitialDelay != time.Millisecond || cfg.Timeout != 2*time.Second {
		t.Errorf("duration options not applied: %+v", cfg)
	}

	if s := NewStoreWithOptions(memory.NewRequestStore(), WithTimeout(time.Second)); s.timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", s.timeout)
	}
}
