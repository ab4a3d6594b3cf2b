package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// RequestStore is a Redis-backed implementation of promotion.Store.
//
// Each request is a JSON string under <prefix>req:<id>. Secondary indexes
// are sets: <prefix>ids holds every id, <prefix>idx:applicant:<a>:<status>
// and <prefix>idx:level:<l>:<status> mirror the (applicant, status) and
// (level, status) indexes. Writes run under WATCH on the request key so a
// concurrent writer aborts the transaction and the mutation is re-run.
type RequestStore struct {
	client    *redis.Client
	keyPrefix string
	retries   int
}

// NewRequestStore creates a new Redis request store with the given configuration.
func NewRequestStore(cfg Config, opts ...ConfigOption) (*RequestStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(cfg.clientOptions())

	ctx := context.Background()
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(promotion.ErrStoreUnavailable, err)
	}

	store := NewRequestStoreFromClient(client, cfg.KeyPrefix)
	if cfg.CASRetries > 0 {
		store.retries = cfg.CASRetries
	}
	return store, nil
}

// NewRequestStoreFromClient creates a store from an existing Redis client.
func NewRequestStoreFromClient(client *redis.Client, keyPrefix string) *RequestStore {
	return &RequestStore{
		client:    client,
		keyPrefix: keyPrefix,
		retries:   5,
	}
}

func (s *RequestStore) requestKey(id string) string {
	return s.keyPrefix + "req:" + id
}

func (s *RequestStore) idsKey() string {
	return s.keyPrefix + "ids"
}

func (s *RequestStore) applicantKey(applicant string, status promotion.Status) string {
	return s.keyPrefix + "idx:applicant:" + applicant + ":" + string(status)
}

func (s *RequestStore) levelKey(level promotion.Level, status promotion.Status) string {
	return s.keyPrefix + "idx:level:" + string(level) + ":" + string(status)
}

// indexKeys returns the index sets pr belongs to.
func (s *RequestStore) indexKeys(pr *promotion.PullRequest) []string {
	keys := []string{s.applicantKey(pr.Applicant, pr.Status)}
	if pr.CurrentLevel != promotion.LevelNone {
		keys = append(keys, s.levelKey(pr.CurrentLevel, pr.Status))
	}
	return keys
}

// Create persists a new request.
func (s *RequestStore) Create(ctx context.Context, pr *promotion.PullRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if pr == nil || pr.ID == "" {
		return promotion.ErrInvalidRequest
	}

	data, err := json.Marshal(pr)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	key := s.requestKey(pr.ID)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return promotion.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.idsKey(), pr.ID)
			for _, idx := range s.indexKeys(pr) {
				pipe.SAdd(ctx, idx, pr.ID)
			}
			return nil
		})
		return err
	})
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*promotion.PullRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.requestKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, promotion.ErrNotFound
		}
		return nil, s.wrapError(err)
	}

	return decode(data)
}

// Mutate applies fn to the current record and commits the result unless the
// key changed since it was read.
func (s *RequestStore) Mutate(ctx context.Context, id string, fn promotion.MutateFunc) (*promotion.PullRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := s.requestKey(id)
	var next *promotion.PullRequest

	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}

		next, err = fn(current)
		if err != nil {
			return err
		}
		if next == nil || next.ID != id {
			return fmt.Errorf("%w: mutation changed the request id", promotion.ErrInvalidRequest)
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			for _, idx := range s.indexKeys(current) {
				pipe.SRem(ctx, idx, id)
			}
			for _, idx := range s.indexKeys(next) {
				pipe.SAdd(ctx, idx, id)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return next, nil
}

// Delete removes the request if check accepts the current record.
func (s *RequestStore) Delete(ctx context.Context, id string, check func(current *promotion.PullRequest) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := s.requestKey(id)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}

		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.idsKey(), id)
			for _, idx := range s.indexKeys(current) {
				pipe.SRem(ctx, idx, id)
			}
			return nil
		})
		return err
	})
}

// List returns requests matching the filter and the total before paging.
// Candidates come from the narrowest index set; the filter is then applied
// to the decoded records.
func (s *RequestStore) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	ids, err := s.candidates(ctx, filter)
	if err != nil {
		return nil, 0, s.wrapError(err)
	}

	matched := []*promotion.PullRequest{}
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.requestKey(id)
		}

		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, 0, s.wrapError(err)
		}

		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				// Deleted between the index read and MGET.
				continue
			}
			pr, err := decode([]byte(raw))
			if err != nil {
				return nil, 0, err
			}
			if filter.Matches(pr) {
				matched = append(matched, pr)
			}
		}
	}

	total := len(matched)
	promotion.SortRequests(matched, filter.OrderBy, filter.Descending)
	return filter.Page(matched), total, nil
}

// candidates returns the ids that may match filter.
func (s *RequestStore) candidates(ctx context.Context, filter promotion.ListFilter) ([]string, error) {
	statuses := filter.Status
	if len(statuses) == 0 {
		statuses = promotion.AllStatuses
	}

	var keys []string
	switch {
	case filter.Applicant != "":
		for _, st := range statuses {
			keys = append(keys, s.applicantKey(filter.Applicant, st))
		}
	case len(filter.Levels) > 0:
		for _, lvl := range filter.Levels {
			if lvl == promotion.LevelNone {
				return s.client.SMembers(ctx, s.idsKey()).Result()
			}
			for _, st := range statuses {
				keys = append(keys, s.levelKey(lvl, st))
			}
		}
	default:
		return s.client.SMembers(ctx, s.idsKey()).Result()
	}

	return s.client.SUnion(ctx, keys...).Result()
}

// watch runs fn under WATCH key, retrying when another client modified the
// key before EXEC.
func (s *RequestStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt <= s.retries; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && isInfraError(err) {
			return s.wrapError(err)
		}
		return err
	}
	return fmt.Errorf("%w: %s changed concurrently", promotion.ErrConflict, key)
}

// load reads and decodes the watched record.
func (s *RequestStore) load(ctx context.Context, tx *redis.Tx, key string) (*promotion.PullRequest, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, promotion.ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

// Close closes the Redis connection.
func (s *RequestStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RequestStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for advanced operations.
func (s *RequestStore) Client() *redis.Client {
	return s.client
}

// wrapError marks infrastructure failures as store unavailability.
func (s *RequestStore) wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return errors.Join(promotion.ErrStoreUnavailable, err)
}

// isInfraError reports failures of the Redis connection or server, as
// opposed to errors returned by the store's checks or a mutation callback.
func isInfraError(err error) bool {
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF)
}

func decode(data []byte) (*promotion.PullRequest, error) {
	var pr promotion.PullRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if pr.ReviewHistory == nil {
		pr.ReviewHistory = []promotion.ReviewRecord{}
	}
	return &pr, nil
}

// Ensure RequestStore implements promotion.Store
var _ promotion.Store = (*RequestStore)(nil)
