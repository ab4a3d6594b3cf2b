// Package storage opens the promotion request store selected by
// configuration.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
	"github.com/felixgeelhaar/promote/infrastructure/resilience"
	"github.com/felixgeelhaar/promote/infrastructure/storage/badger"
	"github.com/felixgeelhaar/promote/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/promote/infrastructure/storage/memory"
	"github.com/felixgeelhaar/promote/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/promote/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/promote/infrastructure/storage/redis"
	"github.com/felixgeelhaar/promote/infrastructure/storage/sqlite"
)

// ErrUnknownDriver is returned for an unsupported storage driver.
var ErrUnknownDriver = errors.New("storage: unknown driver")

// Handle is an opened store and the function releasing it.
type Handle struct {
	promotion.Store
	closers []func(context.Context) error
}

// Close releases every resource behind the store.
func (h *Handle) Close(ctx context.Context) error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handle) onClose(fn func(context.Context) error) {
	h.closers = append(h.closers, fn)
}

// Open connects the configured backend, applies its migrations and wraps
// it with the resilience decorator when enabled.
func Open(ctx context.Context, cfg *config.Config) (*Handle, error) {
	h, err := openDriver(ctx, cfg.Storage, cfg.Workflow.CASRetries)
	if err != nil {
		return nil, err
	}

	if cfg.Resilience.Enabled {
		h.Store = resilience.NewStore(h.Store, ResilienceConfig(cfg.Resilience))
	}

	driver := cfg.Storage.Driver
	if driver == "" {
		driver = config.DriverMemory
	}
	logging.Info().
		Add(logging.Component("storage")).
		Add(logging.Str("driver", driver)).
		Add(logging.Str("resilience", fmt.Sprint(cfg.Resilience.Enabled))).
		Msg("request store opened")

	return h, nil
}

// ResilienceConfig fills unset fields of cfg from resilience.DefaultStoreConfig.
func ResilienceConfig(cfg config.ResilienceConfig) resilience.StoreConfig {
	rc := resilience.DefaultStoreConfig()
	rc.Timeout = cfg.Timeout.Or(rc.Timeout)
	if cfg.Retry.MaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.Retry.MaxAttempts
	}
	rc.RetryInitialDelay = cfg.Retry.InitialDelay.Or(rc.RetryInitialDelay)
	if cfg.Retry.Multiplier > 0 {
		rc.RetryBackoffMultiplier = cfg.Retry.Multiplier
	}
	if cfg.CircuitBreaker.Threshold > 0 {
		rc.CircuitBreakerThreshold = cfg.CircuitBreaker.Threshold
	}
	rc.CircuitBreakerTimeout = cfg.CircuitBreaker.Timeout.Or(rc.CircuitBreakerTimeout)
	return rc
}

func openDriver(ctx context.Context, cfg config.StorageConfig, casRetries int) (*Handle, error) {
	h := &Handle{}

	switch cfg.Driver {
	case "", config.DriverMemory:
		h.Store = memory.NewRequestStore()

	case config.DriverSQLite:
		store, err := sqlite.NewRequestStore(sqlite.FromSettings(cfg.SQLite, casRetries))
		if err != nil {
			return nil, err
		}
		h.Store = store
		h.onClose(func(context.Context) error { return store.Close() })

	case config.DriverPostgres:
		pc := postgres.FromSettings(cfg.Postgres)
		if err := postgres.Migrate(ctx, pc); err != nil {
			return nil, err
		}
		pool, err := postgres.NewPool(ctx, pc)
		if err != nil {
			return nil, err
		}
		h.Store = postgres.NewRequestStore(pool, pc.Schema)
		h.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})

	case config.DriverRedis:
		store, err := redis.NewRequestStore(redis.FromSettings(cfg.Redis, casRetries))
		if err != nil {
			return nil, err
		}
		h.Store = store
		h.onClose(func(context.Context) error { return store.Close() })

	case config.DriverBadger:
		store, err := badger.NewRequestStore(badger.FromSettings(cfg.Badger, casRetries))
		if err != nil {
			return nil, err
		}
		h.Store = store
		h.onClose(func(context.Context) error { return store.Close() })

	case config.DriverMongoDB:
		client, err := mongodb.NewClient(ctx, mongodb.FromSettings(cfg.MongoDB, casRetries))
		if err != nil {
			return nil, err
		}
		if err := client.CreateIndexes(ctx, ""); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		h.Store = mongodb.NewRequestStore(client, "")
		h.onClose(client.Close)

	case config.DriverDynamoDB:
		client, err := dynamodb.NewClient(ctx,
			dynamodb.WithSettings(cfg.DynamoDB),
			dynamodb.WithCASRetries(casRetries),
		)
		if err != nil {
			return nil, err
		}
		if cfg.DynamoDB.CreateTable {
			createCtx, cancel := context.WithTimeout(ctx, time.Minute)
			err := client.CreateRequestsTable(createCtx)
			cancel()
			if err != nil {
				return nil, err
			}
		}
		h.Store = dynamodb.NewRequestStore(client)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	return h, nil
}
