// Package memory provides an in-memory promotion request store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

type applicantKey struct {
	applicant string
	status    promotion.Status
}

type levelKey struct {
	level  promotion.Level
	status promotion.Status
}

type idSet map[string]struct{}

// idLock is a per-request mutex shared by every caller working on that id.
type idLock struct {
	mu   sync.Mutex
	refs int
}

// RequestStore is an in-memory implementation of promotion.Store.
//
// Mutations of one request hold that request's lock for the whole
// read-modify-write; the map lock is only held while reading or swapping
// entries, so unrelated requests never wait on each other.
type RequestStore struct {
	mu          sync.RWMutex
	requests    map[string]*promotion.PullRequest
	byApplicant map[applicantKey]idSet
	byLevel     map[levelKey]idSet

	locksMu sync.Mutex
	locks   map[string]*idLock
}

// NewRequestStore creates a new in-memory request store.
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests:    make(map[string]*promotion.PullRequest),
		byApplicant: make(map[applicantKey]idSet),
		byLevel:     make(map[levelKey]idSet),
		locks:       make(map[string]*idLock),
	}
}

// Create persists a new request.
func (s *RequestStore) Create(ctx context.Context, pr *promotion.PullRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pr == nil || pr.ID == "" {
		return promotion.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[pr.ID]; exists {
		return promotion.ErrAlreadyExists
	}

	stored := pr.Clone()
	s.requests[pr.ID] = stored
	s.index(stored)
	return nil
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*promotion.PullRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pr, ok := s.requests[id]
	if !ok {
		return nil, promotion.ErrNotFound
	}
	return pr.Clone(), nil
}

// Mutate atomically replaces the request with the result of fn.
func (s *RequestStore) Mutate(ctx context.Context, id string, fn promotion.MutateFunc) (*promotion.PullRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	s.mu.RLock()
	current, ok := s.requests[id]
	s.mu.RUnlock()
	if !ok {
		return nil, promotion.ErrNotFound
	}

	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil || next.ID != id {
		return nil, fmt.Errorf("%w: mutation changed the request id", promotion.ErrInvalidRequest)
	}

	stored := next.Clone()

	s.mu.Lock()
	s.unindex(current)
	s.requests[id] = stored
	s.index(stored)
	s.mu.Unlock()

	return stored.Clone(), nil
}

// Delete removes the request if check accepts the current record.
func (s *RequestStore) Delete(ctx context.Context, id string, check func(current *promotion.PullRequest) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	s.mu.RLock()
	current, ok := s.requests[id]
	s.mu.RUnlock()
	if !ok {
		return promotion.ErrNotFound
	}

	if check != nil {
		if err := check(current.Clone()); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.unindex(current)
	delete(s.requests, id)
	s.mu.Unlock()
	return nil
}

// List returns requests matching the filter and the total before paging.
func (s *RequestStore) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	var result []*promotion.PullRequest
	for _, pr := range s.candidates(filter) {
		if filter.Matches(pr) {
			result = append(result, pr.Clone())
		}
	}
	s.mu.RUnlock()

	promotion.SortRequests(result, filter.OrderBy, filter.Descending)
	total := len(result)
	return filter.Page(result), total, nil
}

// Len returns the number of stored requests.
func (s *RequestStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

// candidates narrows the scan through the indexes. Callers hold s.mu.
func (s *RequestStore) candidates(filter promotion.ListFilter) []*promotion.PullRequest {
	statuses := filter.Status
	if len(statuses) == 0 {
		statuses = promotion.AllStatuses
	}

	var ids []idSet
	switch {
	case filter.Applicant != "":
		for _, st := range statuses {
			ids = append(ids, s.byApplicant[applicantKey{filter.Applicant, st}])
		}
	case len(filter.Levels) > 0 && !containsNone(filter.Levels):
		for _, lvl := range filter.Levels {
			for _, st := range statuses {
				ids = append(ids, s.byLevel[levelKey{lvl, st}])
			}
		}
	default:
		all := make([]*promotion.PullRequest, 0, len(s.requests))
		for _, pr := range s.requests {
			all = append(all, pr)
		}
		return all
	}

	var out []*promotion.PullRequest
	for _, set := range ids {
		for id := range set {
			out = append(out, s.requests[id])
		}
	}
	return out
}

func (s *RequestStore) index(pr *promotion.PullRequest) {
	add(s.byApplicant, applicantKey{pr.Applicant, pr.Status}, pr.ID)
	if pr.CurrentLevel != promotion.LevelNone {
		add(s.byLevel, levelKey{pr.CurrentLevel, pr.Status}, pr.ID)
	}
}

func (s *RequestStore) unindex(pr *promotion.PullRequest) {
	remove(s.byApplicant, applicantKey{pr.Applicant, pr.Status}, pr.ID)
	if pr.CurrentLevel != promotion.LevelNone {
		remove(s.byLevel, levelKey{pr.CurrentLevel, pr.Status}, pr.ID)
	}
}

// lock acquires the per-id lock and returns its release func.
func (s *RequestStore) lock(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

func add[K comparable](m map[K]idSet, key K, id string) {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	set[id] = struct{}{}
}

func remove[K comparable](m map[K]idSet, key K, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

func containsNone(levels []promotion.Level) bool {
	for _, l := range levels {
		if l == promotion.LevelNone {
			return true
		}
	}
	return false
}

var _ promotion.Store = (*RequestStore)(nil)
