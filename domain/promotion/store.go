package promotion

import (
	"context"
	"time"
)

// MutateFunc computes the next version of a request. It receives a private
// copy of the current record and returns the record to persist. Returning
// an error aborts the write.
type MutateFunc func(current *PullRequest) (*PullRequest, error)

// Store persists promotion requests. Mutations of the same id are
// serialized; mutations of different ids never wait on each other.
type Store interface {
	// Create persists a new request.
	Create(ctx context.Context, pr *PullRequest) error

	// Get retrieves a request by ID.
	Get(ctx context.Context, id string) (*PullRequest, error)

	// Mutate atomically replaces the request with the result of fn,
	// evaluated against the current stored record.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*PullRequest, error)

	// Delete removes the request if check, evaluated against the current
	// stored record, returns nil.
	Delete(ctx context.Context, id string, check func(current *PullRequest) error) error

	// List returns the requests matching filter and the total match count
	// before paging.
	List(ctx context.Context, filter ListFilter) ([]*PullRequest, int, error)
}

// ListFilter filters request queries.
type ListFilter struct {
	// Applicant filters by applicant.
	Applicant string

	// Status filters by status (any of).
	Status []Status

	// Levels filters by current review level (any of).
	Levels []Level

	// TargetSpace filters by destination space.
	TargetSpace TargetSpace

	// TimeField selects which timestamp FromTime/ToTime apply to.
	TimeField TimeField

	// FromTime filters requests at or after this time.
	FromTime time.Time

	// ToTime filters requests at or before this time.
	ToTime time.Time

	// Limit is the maximum number of results (0 = all).
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// OrderBy specifies the ordering.
	OrderBy OrderBy

	// Descending reverses the order.
	Descending bool
}

// TimeField names a request timestamp used for range filters.
type TimeField string

const (
	TimeFieldCreated TimeField = "created_at"
	TimeFieldApplied TimeField = "apply_time"
	TimeFieldUpdated TimeField = "updated_at"
)

// OrderBy specifies how to order results.
type OrderBy string

const (
	OrderByCreatedAt OrderBy = "created_at"
	OrderByUpdatedAt OrderBy = "updated_at"
	OrderByApplyTime OrderBy = "apply_time"
)

// Matches reports whether pr satisfies the filter, ignoring paging.
func (f ListFilter) Matches(pr *PullRequest) bool {
	if f.Applicant != "" && pr.Applicant != f.Applicant {
		return false
	}
	if len(f.Status) > 0 && !containsStatus(f.Status, pr.Status) {
		return false
	}
	if len(f.Levels) > 0 && !containsLevel(f.Levels, pr.CurrentLevel) {
		return false
	}
	if f.TargetSpace != "" && pr.TargetSpace != f.TargetSpace {
		return false
	}
	if !f.FromTime.IsZero() || !f.ToTime.IsZero() {
		t, ok := f.TimeField.of(pr)
		if !ok {
			return false
		}
		if !f.FromTime.IsZero() && t.Before(f.FromTime) {
			return false
		}
		if !f.ToTime.IsZero() && t.After(f.ToTime) {
			return false
		}
	}
	return true
}

// of returns the selected timestamp; ok is false when it is unset.
func (tf TimeField) of(pr *PullRequest) (time.Time, bool) {
	switch tf {
	case TimeFieldApplied:
		if pr.ApplyTime == nil {
			return time.Time{}, false
		}
		return *pr.ApplyTime, true
	case TimeFieldUpdated:
		return pr.UpdatedAt, true
	default:
		return pr.CreatedAt, true
	}
}

// SortKey returns the timestamp used to order pr under o.
func (o OrderBy) SortKey(pr *PullRequest) time.Time {
	switch o {
	case OrderByUpdatedAt:
		return pr.UpdatedAt
	case OrderByApplyTime:
		if pr.ApplyTime != nil {
			return *pr.ApplyTime
		}
		return time.Time{}
	default:
		return pr.CreatedAt
	}
}

// Page applies offset and limit to an ordered result slice.
func (f ListFilter) Page(items []*PullRequest) []*PullRequest {
	if f.Offset > 0 {
		if f.Offset >= len(items) {
			return []*PullRequest{}
		}
		items = items[f.Offset:]
	}
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsLevel(list []Level, l Level) bool {
	for _, v := range list {
		if v == l {
			return true
		}
	}
	return false
}
