// Package redis provides a Redis-backed promotion request store.
package redis

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/promote/domain/config"
)

// Config holds Redis connection configuration.
type Config struct {
	Address  string
	Password string
	DB       int

	// KeyPrefix namespaces every key, so several deployments can share a
	// server.
	KeyPrefix string

	// DialTimeout also bounds the startup ping.
	DialTimeout time.Duration

	// IOTimeout is used for both socket reads and writes.
	IOTimeout time.Duration

	PoolSize int

	// CASRetries bounds WATCH retries per mutation.
	CASRetries int
}

// DefaultConfig returns the configuration used by `storage.driver: redis`.
func DefaultConfig() Config {
	return Config{
		Address:     "localhost:6379",
		KeyPrefix:   "promote:",
		DialTimeout: 5 * time.Second,
		IOTimeout:   3 * time.Second,
		PoolSize:    10,
		CASRetries:  5,
	}
}

// FromSettings maps the storage.redis section over DefaultConfig.
func FromSettings(s config.RedisConfig, casRetries int) Config {
	cfg := DefaultConfig()
	if s.Address != "" {
		cfg.Address = s.Address
	}
	cfg.Password = s.Password
	cfg.DB = s.DB
	if s.KeyPrefix != "" {
		cfg.KeyPrefix = s.KeyPrefix
	}
	if casRetries > 0 {
		cfg.CASRetries = casRetries
	}
	return cfg
}

func (c Config) clientOptions() *redis.Options {
	return &redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		MaxRetries:   3,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.IOTimeout,
		WriteTimeout: c.IOTimeout,
		PoolSize:     c.PoolSize,
	}
}

// ConfigOption adjusts a Config before the store connects.
type ConfigOption func(*Config)

// WithAddress sets the Redis server address.
func WithAddress(addr string) ConfigOption {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithCASRetries sets how often a mutation is retried after a WATCH abort.
func WithCASRetries(n int) ConfigOption {
	return func(c *Config) {
		c.CASRetries = n
	}
}
