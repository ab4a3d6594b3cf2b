package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

var (
	// ErrUnavailable indicates the data-capture system could not answer.
	ErrUnavailable = errors.New("snapshot: service unavailable")

	// ErrRejected indicates the data-capture system refused the request.
	ErrRejected = errors.New("snapshot: request rejected")
)

// HTTPConfig configures the HTTP provider.
type HTTPConfig struct {
	// BaseURL is the data-capture API root.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxAttempts is the number of tries for transient failures.
	MaxAttempts int
	// RetryDelay is the initial backoff.
	RetryDelay time.Duration
	// CircuitBreakerThreshold is consecutive failures before opening.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration
	// Client overrides the HTTP client.
	Client *http.Client
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:                 10 * time.Second,
		MaxAttempts:             3,
		RetryDelay:              200 * time.Millisecond,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

// fetched carries answers that must not count against the breaker.
type fetched struct {
	snapshot *promotion.ProjectSnapshot
	err      error
}

// HTTPProvider fetches snapshots from GET {base}/projects/{id}/snapshot.
type HTTPProvider struct {
	base    *url.URL
	token   string
	client  *http.Client
	breaker circuitbreaker.CircuitBreaker[fetched]
	retrier retry.Retry[fetched]
}

// NewHTTPProvider creates an HTTP provider.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("snapshot: invalid base url %q", cfg.BaseURL)
	}

	defaults := DefaultHTTPConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = defaults.CircuitBreakerThreshold
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = defaults.CircuitBreakerTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	threshold := cfg.CircuitBreakerThreshold
	return &HTTPProvider{
		base:   base,
		token:  cfg.Token,
		client: client,
		breaker: circuitbreaker.New[fetched](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.CircuitBreakerTimeout,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold)
			},
		}),
		retrier: retry.New[fetched](retry.Config{
			MaxAttempts:        cfg.MaxAttempts,
			InitialDelay:       cfg.RetryDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{ErrRejected},
		}),
	}, nil
}

// FetchSnapshot implements promotion.SnapshotProvider.
func (p *HTTPProvider) FetchSnapshot(ctx context.Context, projectID string) (*promotion.ProjectSnapshot, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", promotion.ErrInvalidSnapshot)
	}

	start := time.Now()
	res, err := p.breaker.Execute(ctx, func(ctx context.Context) (fetched, error) {
		return p.retrier.Do(ctx, func(ctx context.Context) (fetched, error) {
			return p.get(ctx, projectID)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Warn().
			Add(logging.Component("snapshot")).
			Add(logging.ProjectID(projectID)).
			Add(logging.Str("breaker", p.breaker.State().String())).
			Add(logging.Duration(time.Since(start))).
			Add(logging.ErrorField(err)).
			Msg("snapshot fetch failed")
		if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return res.snapshot, res.err
}

// BreakerState reports the circuit breaker state.
func (p *HTTPProvider) BreakerState() string {
	return p.breaker.State().String()
}

func (p *HTTPProvider) get(ctx context.Context, projectID string) (fetched, error) {
	target := p.base.JoinPath("projects", projectID, "snapshot")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fetched{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fetched{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fetched{err: fmt.Errorf("%w: project %s", promotion.ErrNotFound, projectID)}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fetched{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fetched{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, body)
	}

	var snap promotion.ProjectSnapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&snap); err != nil {
		return fetched{err: fmt.Errorf("%w: decode: %v", promotion.ErrInvalidSnapshot, err)}, nil
	}
	if snap.ProjectID == "" {
		snap.ProjectID = projectID
	}
	if snap.ProjectID != projectID {
		return fetched{err: fmt.Errorf("%w: asked for %s, got %s", promotion.ErrInvalidSnapshot, projectID, snap.ProjectID)}, nil
	}
	if err := snap.Validate(); err != nil {
		return fetched{err: err}, nil
	}
	return fetched{snapshot: &snap}, nil
}

var _ promotion.SnapshotProvider = (*HTTPProvider)(nil)
