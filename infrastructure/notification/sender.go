// Package notification delivers promotion events to webhooks and logs.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/promote/domain/notification"
)

// Delivery headers.
const (
	HeaderEvent    = "X-Promote-Event"
	HeaderDelivery = "X-Promote-Delivery"
)

// SenderConfig configures the HTTP sender.
type SenderConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
	// MaxRetries is the maximum number of attempts.
	MaxRetries int
	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration
	// CircuitBreakerThreshold is failures before opening circuit.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long circuit stays open.
	CircuitBreakerTimeout time.Duration
	// UserAgent is the User-Agent header value.
	UserAgent string
	// Client overrides the HTTP client.
	Client *http.Client
}

// DefaultSenderConfig returns sensible default configuration.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Timeout:                 30 * time.Second,
		MaxRetries:              3,
		RetryDelay:              1 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		UserAgent:               "promote-webhook/1.0",
	}
}

// Sender handles HTTP delivery of webhook notifications. Each endpoint
// gets its own circuit breaker.
type Sender struct {
	config   SenderConfig
	client   *http.Client
	signer   *Signer
	breakers map[string]circuitbreaker.CircuitBreaker[int]
	retrier  retry.Retry[int]
	mu       sync.RWMutex
}

// NewSender creates a new HTTP sender.
func NewSender(config SenderConfig) *Sender {
	defaults := DefaultSenderConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = defaults.CircuitBreakerThreshold
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = defaults.CircuitBreakerTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Sender{
		config:   config,
		client:   client,
		signer:   NewSigner(),
		breakers: make(map[string]circuitbreaker.CircuitBreaker[int]),
		retrier: retry.New[int](retry.Config{
			MaxAttempts:   config.MaxRetries,
			InitialDelay:  config.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			// 4xx answers are final
			NonRetryableErrors: []error{notification.ErrEndpointRejected},
		}),
	}
}

// Send sends one event to endpoint.
func (s *Sender) Send(ctx context.Context, endpoint *notification.Endpoint, event *notification.Event) error {
	return s.SendBatch(ctx, endpoint, []*notification.Event{event})
}

// SendBatch posts events to endpoint as a JSON array.
func (s *Sender) SendBatch(ctx context.Context, endpoint *notification.Endpoint, events []*notification.Event) error {
	if endpoint == nil || endpoint.URL == "" {
		return notification.ErrInvalidEndpoint
	}
	if len(events) == 0 {
		return nil
	}

	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to serialize events: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("User-Agent", s.config.UserAgent)
	header.Set(HeaderDelivery, events[0].ID)
	if eventType := commonType(events); eventType != "" {
		header.Set(HeaderEvent, string(eventType))
	}
	for key, value := range endpoint.Headers {
		header.Set(key, value)
	}
	if endpoint.Secret != "" {
		for key, value := range s.signer.SignedHeaders(payload, endpoint.Secret, time.Now()) {
			header.Set(key, value)
		}
	}

	breaker := s.getBreaker(endpoint.URL)
	_, err = breaker.Execute(ctx, func(ctx context.Context) (int, error) {
		return s.retrier.Do(ctx, func(ctx context.Context) (int, error) {
			return s.post(ctx, endpoint.URL, header, payload)
		})
	})
	return err
}

// post performs one delivery attempt. The request is rebuilt per attempt
// so the body can be replayed.
func (s *Sender) post(ctx context.Context, url string, header http.Header, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", notification.ErrInvalidEndpoint, err)
	}
	req.Header = header.Clone()

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", notification.ErrEndpointUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", notification.ErrEndpointUnavailable, resp.StatusCode, body)
	default:
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", notification.ErrEndpointRejected, resp.StatusCode, body)
	}
}

// getBreaker returns the circuit breaker for an endpoint, creating one if needed.
func (s *Sender) getBreaker(url string) circuitbreaker.CircuitBreaker[int] {
	s.mu.RLock()
	breaker, exists := s.breakers[url]
	s.mu.RUnlock()
	if exists {
		return breaker
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if breaker, exists = s.breakers[url]; exists {
		return breaker
	}

	threshold := s.config.CircuitBreakerThreshold
	breaker = circuitbreaker.New[int](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    s.config.CircuitBreakerTimeout,
		Timeout:     s.config.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold is positive
		},
	})
	s.breakers[url] = breaker

	return breaker
}

// BreakerState returns the circuit breaker state for an endpoint.
func (s *Sender) BreakerState(url string) string {
	s.mu.RLock()
	breaker, exists := s.breakers[url]
	s.mu.RUnlock()

	if !exists {
		return "unknown"
	}
	return breaker.State().String()
}

func commonType(events []*notification.Event) notification.EventType {
	t := events[0].Type
	for _, e := range events[1:] {
		if e.Type != t {
			return ""
		}
	}
	return t
}
