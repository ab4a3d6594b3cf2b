// Package authz decides reviewer capability from a configured roster.
package authz

import (
	"context"
	"strings"
	"sync"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// Roster authorizes reviewers listed per level. The applicant of a
// request may never review it. Update swaps the roster atomically so it
// can follow configuration reloads.
type Roster struct {
	mu     sync.RWMutex
	levels map[promotion.Level]map[string]struct{}
}

// NewRoster creates a roster from the reviewers section.
func NewRoster(cfg config.ReviewersConfig) *Roster {
	r := &Roster{}
	r.set(cfg)
	return r
}

// Update replaces the roster.
func (r *Roster) Update(cfg config.ReviewersConfig) {
	r.set(cfg)
	logging.Info().
		Add(logging.Component("authz")).
		Add(logging.Int("level1", len(cfg.Level1))).
		Add(logging.Int("level2", len(cfg.Level2))).
		Msg("reviewer roster updated")
}

func (r *Roster) set(cfg config.ReviewersConfig) {
	levels := map[promotion.Level]map[string]struct{}{
		promotion.Level1: members(cfg.Level1),
		promotion.Level2: members(cfg.Level2),
	}
	r.mu.Lock()
	r.levels = levels
	r.mu.Unlock()
}

func members(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			m[n] = struct{}{}
		}
	}
	return m
}

// CanReview implements promotion.Authorizer.
func (r *Roster) CanReview(ctx context.Context, actor string, level promotion.Level, pr *promotion.PullRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if actor == "" || (pr != nil && pr.Applicant == actor) {
		return false, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.levels[level][actor]
	return ok, nil
}

// LevelsFor implements promotion.ReviewerLevels.
func (r *Roster) LevelsFor(ctx context.Context, actor string) ([]promotion.Level, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var levels []promotion.Level
	for _, l := range []promotion.Level{promotion.Level1, promotion.Level2} {
		if _, ok := r.levels[l][actor]; ok {
			levels = append(levels, l)
		}
	}
	return levels, nil
}

var (
	_ promotion.Authorizer     = (*Roster)(nil)
	_ promotion.ReviewerLevels = (*Roster)(nil)
)
