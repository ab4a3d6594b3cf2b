package resilience

import "time"

// Option configures the resilient store.
type Option func(*StoreConfig)

// WithMaxConcurrent sets the maximum concurrent store calls.
func WithMaxConcurrent(n int) Option {
	return func(c *StoreConfig) {
		c.MaxConcurrent = n
	}
}

// WithCircuitBreakerThreshold sets the failure threshold for the circuit breaker.
func WithCircuitBreakerThreshold(n int) Option {
	return func(c *StoreConfig) {
		c.CircuitBreakerThreshold = n
	}
}

// WithCircuitBreakerTimeout sets the circuit breaker open duration.
func WithCircuitBreakerTimeout(d time.Duration) Option {
	return func(c *StoreConfig) {
		c.CircuitBreakerTimeout = d
	}
}

// WithRetryAttempts sets the maximum read attempts.
func WithRetryAttempts(n int) Option {
	return func(c *StoreConfig) {
		c.RetryMaxAttempts = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *StoreConfig) {
		c.RetryInitialDelay = d
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *StoreConfig) {
		c.Timeout = d
	}
}
