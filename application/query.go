package application

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// Query selects requests for List.
type Query struct {
	// Applicant restricts results to one applicant.
	Applicant string

	// ReviewableBy restricts results to requests awaiting review that the
	// named reviewer may act on.
	ReviewableBy string

	// Statuses restricts results to any of these statuses.
	Statuses []promotion.Status

	// TargetSpace restricts results to one destination space.
	TargetSpace promotion.TargetSpace

	// TimeField selects the timestamp From and To apply to (default created_at).
	TimeField promotion.TimeField
	From      time.Time
	To        time.Time

	OrderBy    promotion.OrderBy
	Descending bool

	Offset int
	Limit  int
}

// Page is one page of List results.
type Page struct {
	Items  []*promotion.PullRequest `json:"items"`
	Total  int                      `json:"total"`
	Offset int                      `json:"offset"`
	Limit  int                      `json:"limit"`
}

// List returns requests matching q. It never mutates state.
func (s *Service) List(ctx context.Context, q Query) (page Page, err error) {
	ctx, done := s.observe(ctx, "list", "")
	defer func() { done(err) }()

	if err := validateQuery(q); err != nil {
		return Page{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := max(q.Offset, 0)

	filter := promotion.ListFilter{
		Applicant:   q.Applicant,
		Status:      q.Statuses,
		TargetSpace: q.TargetSpace,
		TimeField:   q.TimeField,
		FromTime:    q.From,
		ToTime:      q.To,
		OrderBy:     q.OrderBy,
		Descending:  q.Descending,
	}

	if q.ReviewableBy == "" {
		filter.Offset, filter.Limit = offset, limit
		items, total, err := s.store.List(ctx, filter)
		if err != nil {
			return Page{}, translate(err)
		}
		return newPage(items, total, offset, limit), nil
	}

	items, err := s.reviewable(ctx, q.ReviewableBy, filter)
	if err != nil {
		return Page{}, err
	}
	paged := promotion.ListFilter{Offset: offset, Limit: limit}.Page(items)
	return newPage(paged, len(items), offset, limit), nil
}

// reviewable returns every request awaiting review that reviewer may act
// on, in filter order.
func (s *Service) reviewable(ctx context.Context, reviewer string, filter promotion.ListFilter) ([]*promotion.PullRequest, error) {
	var statuses []promotion.Status
	if len(filter.Status) == 0 {
		statuses = []promotion.Status{promotion.StatusPending, promotion.StatusReviewing}
	} else {
		for _, st := range filter.Status {
			if st.AwaitsReview() {
				statuses = append(statuses, st)
			}
		}
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	filter.Status = statuses
	filter.Levels = []promotion.Level{promotion.Level1, promotion.Level2}

	if lr, ok := s.authorizer.(promotion.ReviewerLevels); ok {
		levels, err := lr.LevelsFor(ctx, reviewer)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthorizerUnavailable, err)
		}
		if len(levels) == 0 {
			return nil, nil
		}
		filter.Levels = levels
	}

	candidates, _, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, translate(err)
	}

	visible := make([]*promotion.PullRequest, 0, len(candidates))
	for _, pr := range candidates {
		ok, err := s.authorizer.CanReview(ctx, reviewer, pr.CurrentLevel, pr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthorizerUnavailable, err)
		}
		if ok {
			visible = append(visible, pr)
		}
	}
	return visible, nil
}

func validateQuery(q Query) error {
	for _, st := range q.Statuses {
		if !st.IsValid() {
			return fmt.Errorf("%w: unknown status %q", promotion.ErrInvalidRequest, st)
		}
	}
	if q.TargetSpace != "" && !q.TargetSpace.IsValid() {
		return fmt.Errorf("%w: %q", promotion.ErrInvalidTargetSpace, q.TargetSpace)
	}
	switch q.TimeField {
	case "", promotion.TimeFieldCreated, promotion.TimeFieldApplied, promotion.TimeFieldUpdated:
	default:
		return fmt.Errorf("%w: unknown time field %q", promotion.ErrInvalidRequest, q.TimeField)
	}
	switch q.OrderBy {
	case "", promotion.OrderByCreatedAt, promotion.OrderByUpdatedAt, promotion.OrderByApplyTime:
	default:
		return fmt.Errorf("%w: unknown order %q", promotion.ErrInvalidRequest, q.OrderBy)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return fmt.Errorf("%w: time range ends before it starts", promotion.ErrInvalidRequest)
	}
	return nil
}

func newPage(items []*promotion.PullRequest, total, offset, limit int) Page {
	if items == nil {
		items = []*promotion.PullRequest{}
	}
	return Page{Items: items, Total: total, Offset: offset, Limit: limit}
}
