// Package badger provides a BadgerDB-backed promotion request store.
package badger

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// ErrConnectionFailed wraps errors from opening the database.
var ErrConnectionFailed = errors.New("badger: connection failed")

// Config configures BadgerDB storage.
type Config struct {
	// Dir holds the LSM tree and value log. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// KeyPrefix namespaces every key the store writes.
	KeyPrefix string

	// GCInterval is how often value-log GC runs; zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is handed to RunValueLogGC.
	GCDiscardRatio float64

	// CASRetries bounds retries after a transaction conflict.
	CASRetries int

	// Logger receives badger's own output; nil routes it through the
	// application logger.
	Logger badger.Logger
}

// DefaultConfig returns the configuration used by `storage.driver: badger`.
func DefaultConfig() Config {
	return Config{
		Dir:            "promote-data",
		KeyPrefix:      "promote:",
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
		CASRetries:     5,
	}
}

// FromSettings maps the storage.badger section over DefaultConfig.
func FromSettings(s config.BadgerConfig, casRetries int) Config {
	cfg := DefaultConfig()
	if s.Dir != "" {
		cfg.Dir = s.Dir
	}
	cfg.InMemory = s.InMemory
	if casRetries > 0 {
		cfg.CASRetries = casRetries
	}
	return cfg
}

// Option adjusts a Config before the store opens.
type Option func(*Config)

// WithDir sets the data directory.
func WithDir(dir string) Option {
	return func(c *Config) {
		c.Dir = dir
	}
}

// WithInMemory keeps the database in RAM.
func WithInMemory() Option {
	return func(c *Config) {
		c.InMemory = true
	}
}

// WithCASRetries sets the transaction conflict retry bound.
func WithCASRetries(n int) Option {
	return func(c *Config) {
		c.CASRetries = n
	}
}

func openDB(cfg Config) (*badger.DB, error) {
	dir := cfg.Dir
	if cfg.InMemory {
		dir = ""
	}
	opts := badger.DefaultOptions(dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	} else {
		opts = opts.WithLogger(logging.PrintfLogger{Component: "badger"})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return db, nil
}
