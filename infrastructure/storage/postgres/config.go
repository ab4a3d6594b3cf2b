// Package postgres provides a PostgreSQL-backed promotion request store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/promote/domain/config"
)

var (
	ErrConnectionFailed = errors.New("postgres: connection failed")
	ErrMigrationFailed  = errors.New("postgres: migration failed")
	ErrOperationTimeout = errors.New("postgres: operation timed out")
)

// DefaultDSN points at a local development database.
const DefaultDSN = "postgres://postgres@localhost:5432/promote?sslmode=disable"

// Config holds PostgreSQL connection configuration.
type Config struct {
	// DSN is a URL ("postgres://...") or keyword/value connection string.
	DSN string

	// Schema holds the promotion tables. Anything but "public" is put
	// first on the search path.
	Schema string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns the configuration used by `storage.driver: postgres`.
func DefaultConfig() Config {
	return Config{
		DSN:             DefaultDSN,
		Schema:          "public",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  10 * time.Second,
	}
}

// FromSettings maps the storage.postgres section over DefaultConfig.
func FromSettings(s config.PostgresConfig) Config {
	cfg := DefaultConfig()
	if s.DSN != "" {
		cfg.DSN = s.DSN
	}
	if s.Schema != "" {
		cfg.Schema = s.Schema
	}
	if s.MaxConns > 0 {
		cfg.MaxConns = s.MaxConns
		if cfg.MinConns > s.MaxConns {
			cfg.MinConns = s.MaxConns
		}
	}
	return cfg
}

// ConnectionString returns the DSN with the schema on the search path.
func (c Config) ConnectionString() string {
	if c.Schema == "" || c.Schema == "public" {
		return c.DSN
	}
	if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
		u, err := url.Parse(c.DSN)
		if err == nil {
			q := u.Query()
			q.Set("search_path", c.Schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return strings.TrimSpace(c.DSN + " search_path=" + c.Schema)
}

// NewPool opens and pings a pgx connection pool.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return pool, nil
}
