// Package resilience wraps a promotion.Store with fortify retries, a
// circuit breaker and a bulkhead.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// StoreConfig configures the resilient store.
type StoreConfig struct {
	// MaxConcurrent limits concurrent store calls.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive infrastructure
	// failures before the circuit opens.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts for reads.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between read retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// Timeout bounds each store call. Zero leaves the caller's deadline alone.
	Timeout time.Duration
}

// DefaultStoreConfig returns a configuration with sensible defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxConcurrent:           64,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       50 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		Timeout:                 10 * time.Second,
	}
}

// result carries a store answer through the fortify wrappers. Domain
// errors ride in err so that only infrastructure failures reach the
// breaker and the retrier.
type result struct {
	pr    *promotion.PullRequest
	items []*promotion.PullRequest
	total int
	err   error
}

// Store decorates a promotion.Store. Reads are retried on infrastructure
// failures; writes go through the breaker once and are never retried.
// While the circuit is open every call fails with ErrStoreUnavailable.
type Store struct {
	next     promotion.Store
	bulkhead bulkhead.Bulkhead[result]
	breaker  circuitbreaker.CircuitBreaker[result]
	retry    retry.Retry[result]
	timeout  time.Duration
}

// NewStore wraps next.
func NewStore(next promotion.Store, config StoreConfig) *Store {
	defaults := DefaultStoreConfig()
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaults.MaxConcurrent
	}
	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = defaults.CircuitBreakerThreshold
	}
	breakerTimeout := config.CircuitBreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = defaults.CircuitBreakerTimeout
	}
	attempts := config.RetryMaxAttempts
	if attempts <= 0 {
		attempts = defaults.RetryMaxAttempts
	}
	delay := config.RetryInitialDelay
	if delay <= 0 {
		delay = defaults.RetryInitialDelay
	}
	multiplier := config.RetryBackoffMultiplier
	if multiplier < 1 {
		multiplier = defaults.RetryBackoffMultiplier
	}

	return &Store{
		next: next,
		bulkhead: bulkhead.New[result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		breaker: circuitbreaker.New[result](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    breakerTimeout,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold is positive
			},
		}),
		retry: retry.New[result](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  delay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    multiplier,
		}),
		timeout: config.Timeout,
	}
}

// NewStoreWithOptions wraps next using the default configuration adjusted by opts.
func NewStoreWithOptions(next promotion.Store, opts ...Option) *Store {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return NewStore(next, config)
}

// Create implements promotion.Store.
func (s *Store) Create(ctx context.Context, pr *promotion.PullRequest) error {
	r, err := s.execute(ctx, "create", false, func(ctx context.Context) result {
		return result{err: s.next.Create(ctx, pr)}
	})
	if err != nil {
		return err
	}
	return r.err
}

// Get implements promotion.Store.
func (s *Store) Get(ctx context.Context, id string) (*promotion.PullRequest, error) {
	r, err := s.execute(ctx, "get", true, func(ctx context.Context) result {
		pr, err := s.next.Get(ctx, id)
		return result{pr: pr, err: err}
	})
	if err != nil {
		return nil, err
	}
	return r.pr, r.err
}

// Mutate implements promotion.Store.
func (s *Store) Mutate(ctx context.Context, id string, fn promotion.MutateFunc) (*promotion.PullRequest, error) {
	r, err := s.execute(ctx, "mutate", false, func(ctx context.Context) result {
		pr, err := s.next.Mutate(ctx, id, func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
			next, err := fn(current)
			if err != nil {
				return nil, &callbackError{err: err}
			}
			return next, nil
		})
		return result{pr: pr, err: err}
	})
	if err != nil {
		return nil, err
	}
	return r.pr, unwrapCallback(r.err)
}

// Delete implements promotion.Store.
func (s *Store) Delete(ctx context.Context, id string, check func(current *promotion.PullRequest) error) error {
	r, err := s.execute(ctx, "delete", false, func(ctx context.Context) result {
		var guarded func(*promotion.PullRequest) error
		if check != nil {
			guarded = func(current *promotion.PullRequest) error {
				if err := check(current); err != nil {
					return &callbackError{err: err}
				}
				return nil
			}
		}
		return result{err: s.next.Delete(ctx, id, guarded)}
	})
	if err != nil {
		return err
	}
	return unwrapCallback(r.err)
}

// List implements promotion.Store.
func (s *Store) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	r, err := s.execute(ctx, "list", true, func(ctx context.Context) result {
		items, total, err := s.next.List(ctx, filter)
		return result{items: items, total: total, err: err}
	})
	if err != nil {
		return nil, 0, err
	}
	return r.items, r.total, r.err
}

// BreakerState returns the circuit breaker state.
func (s *Store) BreakerState() string {
	return s.breaker.State().String()
}

// execute runs op. Composition order: Bulkhead → Timeout → Circuit
// Breaker → Retry (reads only). The returned error is non-nil only for
// infrastructure failures; domain errors come back inside the result.
func (s *Store) execute(ctx context.Context, name string, idempotent bool, call func(context.Context) result) (result, error) {
	parent := ctx

	r, err := s.bulkhead.Execute(ctx, func(ctx context.Context) (result, error) {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		return s.breaker.Execute(ctx, func(ctx context.Context) (result, error) {
			attempt := func(ctx context.Context) (result, error) {
				r := call(ctx)
				if isInfra(parent, r.err) {
					return result{}, r.err
				}
				return r, nil
			}
			if idempotent {
				return s.retry.Do(ctx, attempt)
			}
			return attempt(ctx)
		})
	})
	if err == nil {
		return r, nil
	}

	if cerr := parent.Err(); cerr != nil {
		return result{}, cerr
	}

	logging.Warn().
		Add(logging.Component("resilience")).
		Add(logging.Operation(name)).
		Add(logging.Str("breaker", s.BreakerState())).
		Add(logging.ErrorField(err)).
		Msg("request store call failed")

	if errors.Is(err, promotion.ErrStoreUnavailable) {
		return result{}, err
	}
	return result{}, fmt.Errorf("%w: %w", promotion.ErrStoreUnavailable, err)
}

// isInfra reports whether err is an infrastructure failure rather than a
// domain answer or the caller giving up.
func isInfra(parent context.Context, err error) bool {
	if err == nil {
		return false
	}
	var cb *callbackError
	if errors.As(err, &cb) {
		return false
	}
	if errors.Is(err, promotion.ErrStoreUnavailable) {
		return true
	}
	for _, domain := range domainErrors {
		if errors.Is(err, domain) {
			return false
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return parent.Err() == nil
	}
	return true
}

var domainErrors = []error{
	promotion.ErrNotFound,
	promotion.ErrAlreadyExists,
	promotion.ErrInvalidTransition,
	promotion.ErrCompletenessTooLow,
	promotion.ErrForbidden,
	promotion.ErrConflict,
	promotion.ErrInvalidSnapshot,
	promotion.ErrInvalidTargetSpace,
	promotion.ErrInvalidAction,
	promotion.ErrCommentRequired,
	promotion.ErrInvalidRequest,
}

// callbackError marks an error returned by the caller's mutate or delete
// callback. It is the caller's answer and never an infrastructure failure.
type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return e.err.Error() }

func (e *callbackError) Unwrap() error { return e.err }

func unwrapCallback(err error) error {
	var cb *callbackError
	if errors.As(err, &cb) {
		return cb.err
	}
	return err
}

var _ promotion.Store = (*Store)(nil)
