package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// RequestStore is a BadgerDB-backed implementation of promotion.Store.
// Index entries are empty-valued keys written in the same transaction as
// the record; conflicting transactions on one id are retried.
type RequestStore struct {
	db        *badger.DB
	keyPrefix string
	retries   int
	gcStop    chan struct{}
	gcWg      sync.WaitGroup
	closeOnce sync.Once
}

// NewRequestStore creates a new BadgerDB request store with the given configuration.
func NewRequestStore(cfg Config, opts ...Option) (*RequestStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := NewRequestStoreFromDB(db, cfg.KeyPrefix)
	if cfg.CASRetries > 0 {
		s.retries = cfg.CASRetries
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

// NewRequestStoreFromDB creates a request store from an existing BadgerDB database.
func NewRequestStoreFromDB(db *badger.DB, keyPrefix string) *RequestStore {
	return &RequestStore{
		db:        db,
		keyPrefix: keyPrefix,
		retries:   5,
		gcStop:    make(chan struct{}),
	}
}

// startGC starts the value log garbage collection goroutine.
func (s *RequestStore) startGC(interval time.Duration, discardRatio float64) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
				for {
					if err := s.db.RunValueLogGC(discardRatio); err != nil {
						break
					}
				}
			}
		}
	}()
}

// Key format: prefix:req:id
func (s *RequestStore) requestKey(id string) []byte {
	return []byte(s.keyPrefix + "req:" + id)
}

// Key format: prefix:idx:applicant:applicant:status:id
func (s *RequestStore) applicantPrefix(applicant string, status promotion.Status) []byte {
	return []byte(s.keyPrefix + "idx:applicant:" + applicant + ":" + string(status) + ":")
}

// Key format: prefix:idx:level:level:status:id
func (s *RequestStore) levelPrefix(level promotion.Level, status promotion.Status) []byte {
	return []byte(s.keyPrefix + "idx:level:" + string(level) + ":" + string(status) + ":")
}

// indexKeys returns the index entries pr owns.
func (s *RequestStore) indexKeys(pr *promotion.PullRequest) [][]byte {
	keys := [][]byte{append(s.applicantPrefix(pr.Applicant, pr.Status), pr.ID...)}
	if pr.CurrentLevel != promotion.LevelNone {
		keys = append(keys, append(s.levelPrefix(pr.CurrentLevel, pr.Status), pr.ID...))
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

	return s.update(ctx, pr.ID, func(txn *badger.Txn) error {
		_, err := txn.Get(s.requestKey(pr.ID))
		if err == nil {
			return promotion.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(s.requestKey(pr.ID), data); err != nil {
			return err
		}
		return s.setIndexes(txn, pr)
	})
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*promotion.PullRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pr *promotion.PullRequest
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		pr, err = s.load(txn, id)
		return err
	})
	if err != nil {
		return nil, s.wrapError(err)
	}
	return pr, nil
}

// Mutate applies fn inside a read-write transaction. A conflicting commit
// re-runs fn against the record that won.
func (s *RequestStore) Mutate(ctx context.Context, id string, fn promotion.MutateFunc) (*promotion.PullRequest, error) {
	var next *promotion.PullRequest

	err := s.update(ctx, id, func(txn *badger.Txn) error {
		current, err := s.load(txn, id)
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

		for _, key := range s.indexKeys(current) {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		if err := txn.Set(s.requestKey(id), data); err != nil {
			return err
		}
		return s.setIndexes(txn, next)
	})
	if err != nil {
		return nil, err
	}

	return next, nil
}

// Delete removes the request if check accepts the current record.
func (s *RequestStore) Delete(ctx context.Context, id string, check func(current *promotion.PullRequest) error) error {
	return s.update(ctx, id, func(txn *badger.Txn) error {
		current, err := s.load(txn, id)
		if err != nil {
			return err
		}

		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}

		for _, key := range s.indexKeys(current) {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete(s.requestKey(id))
	})
}

// List returns requests matching the filter and the total before paging.
func (s *RequestStore) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	matched := []*promotion.PullRequest{}

	err := s.db.View(func(txn *badger.Txn) error {
		ids, scanAll, err := s.candidates(txn, filter)
		if err != nil {
			return err
		}

		if scanAll {
			return s.scanRequests(txn, func(pr *promotion.PullRequest) {
				if filter.Matches(pr) {
					matched = append(matched, pr)
				}
			})
		}

		for _, id := range ids {
			pr, err := s.load(txn, id)
			if errors.Is(err, promotion.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if filter.Matches(pr) {
				matched = append(matched, pr)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, s.wrapError(err)
	}

	total := len(matched)
	promotion.SortRequests(matched, filter.OrderBy, filter.Descending)
	return filter.Page(matched), total, nil
}

// candidates collects ids from the narrowest index. scanAll is true when no
// index applies.
func (s *RequestStore) candidates(txn *badger.Txn, filter promotion.ListFilter) ([]string, bool, error) {
	statuses := filter.Status
	if len(statuses) == 0 {
		statuses = promotion.AllStatuses
	}

	var prefixes [][]byte
	switch {
	case filter.Applicant != "":
		for _, st := range statuses {
			prefixes = append(prefixes, s.applicantPrefix(filter.Applicant, st))
		}
	case len(filter.Levels) > 0:
		for _, lvl := range filter.Levels {
			if lvl == promotion.LevelNone {
				return nil, true, nil
			}
			for _, st := range statuses {
				prefixes = append(prefixes, s.levelPrefix(lvl, st))
			}
		}
	default:
		return nil, true, nil
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	seen := make(map[string]struct{})
	var ids []string
	for _, prefix := range prefixes {
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, false, nil
}

// scanRequests decodes every stored request.
func (s *RequestStore) scanRequests(txn *badger.Txn, visit func(*promotion.PullRequest)) error {
	prefix := []byte(s.keyPrefix + "req:")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var pr *promotion.PullRequest
		err := it.Item().Value(func(val []byte) error {
			var err error
			pr, err = decode(val)
			return err
		})
		if err != nil {
			return err
		}
		visit(pr)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *RequestStore) update(ctx context.Context, id string, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return s.wrapError(err)
	}
	return fmt.Errorf("%w: request %s changed concurrently", promotion.ErrConflict, id)
}

func (s *RequestStore) setIndexes(txn *badger.Txn, pr *promotion.PullRequest) error {
	for _, key := range s.indexKeys(pr) {
		if err := txn.Set(key, nil); err != nil {
			return err
		}
	}
	return nil
}

// load reads and decodes a request within txn.
func (s *RequestStore) load(txn *badger.Txn, id string) (*promotion.PullRequest, error) {
	item, err := txn.Get(s.requestKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, promotion.ErrNotFound
		}
		return nil, err
	}

	var pr *promotion.PullRequest
	err = item.Value(func(val []byte) error {
		var err error
		pr, err = decode(val)
		return err
	})
	return pr, err
}

// Close stops garbage collection and closes the database.
func (s *RequestStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB returns the underlying BadgerDB database.
func (s *RequestStore) DB() *badger.DB {
	return s.db
}

// wrapError marks badger's own failures as store unavailability.
func (s *RequestStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return errors.Join(promotion.ErrStoreUnavailable, err)
	}
	return err
}

func decode(val []byte) (*promotion.PullRequest, error) {
	var pr promotion.PullRequest
	if err := json.Unmarshal(val, &pr); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if pr.ReviewHistory == nil {
		pr.ReviewHistory = []promotion.ReviewRecord{}
	}
	return &pr, nil
}

// Ensure RequestStore implements promotion.Store
var _ promotion.Store = (*RequestStore)(nil)
