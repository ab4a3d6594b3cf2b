// Package sqlite provides a SQLite-backed promotion request store.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/promote/domain/config"
)

// DefaultCASRetries is how often a mutation is retried after losing a
// version race.
const DefaultCASRetries = 5

// DefaultDSN opens promote.db in the working directory.
const DefaultDSN = "file:promote.db?cache=shared&mode=rwc"

var (
	ErrConnectionFailed = errors.New("sqlite: connection failed")
	ErrMigrationFailed  = errors.New("sqlite: migration failed")
)

// Config configures SQLite storage. SQLite serializes writers, so the
// store always runs on a single connection.
type Config struct {
	// DSN is the data source name, e.g. "file:promote.db?mode=rwc".
	DSN string

	// AutoMigrate applies the embedded migrations on open.
	AutoMigrate bool

	// JournalMode is applied with PRAGMA journal_mode; empty keeps the
	// driver default.
	JournalMode string

	// BusyTimeout is the PRAGMA busy_timeout in milliseconds.
	BusyTimeout int

	// CASRetries bounds optimistic-concurrency retries per mutation.
	CASRetries int
}

// DefaultConfig returns a WAL-mode, auto-migrating configuration.
func DefaultConfig() Config {
	return Config{
		DSN:         DefaultDSN,
		AutoMigrate: true,
		JournalMode: "WAL",
		BusyTimeout: 5000,
		CASRetries:  DefaultCASRetries,
	}
}

// FromSettings maps the storage.sqlite section over DefaultConfig.
func FromSettings(s config.SQLiteConfig, casRetries int) Config {
	cfg := DefaultConfig()
	if s.DSN != "" {
		cfg.DSN = s.DSN
	}
	if casRetries > 0 {
		cfg.CASRetries = casRetries
	}
	return cfg
}

// Option adjusts a Config before the store opens.
type Option func(*Config)

// WithCASRetries sets the optimistic-concurrency retry bound.
func WithCASRetries(n int) Option {
	return func(c *Config) {
		c.CASRetries = n
	}
}

// WithoutMigrations leaves the schema alone on open.
func WithoutMigrations() Option {
	return func(c *Config) {
		c.AutoMigrate = false
	}
}

func openDB(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var pragmas []string
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode="+cfg.JournalMode)
	}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout))
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return db, nil
}
