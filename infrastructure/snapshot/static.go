// Package snapshot provides promotion.SnapshotProvider implementations
// backed by an in-memory table or the data-capture HTTP API.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// StaticProvider serves snapshots from memory.
type StaticProvider struct {
	mu        sync.RWMutex
	snapshots map[string]*promotion.ProjectSnapshot
}

// NewStaticProvider creates a provider holding the given snapshots.
func NewStaticProvider(snapshots ...*promotion.ProjectSnapshot) *StaticProvider {
	p := &StaticProvider{snapshots: make(map[string]*promotion.ProjectSnapshot, len(snapshots))}
	for _, s := range snapshots {
		p.snapshots[s.ProjectID] = s.Clone()
	}
	return p
}

// LoadFile reads a JSON array of snapshots into a StaticProvider.
func LoadFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	var list []*promotion.ProjectSnapshot
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse snapshots: %w", err)
	}
	for _, s := range list {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return NewStaticProvider(list...), nil
}

// Put replaces the snapshot of a project.
func (p *StaticProvider) Put(s *promotion.ProjectSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[s.ProjectID] = s.Clone()
}

// FetchSnapshot implements promotion.SnapshotProvider.
func (p *StaticProvider) FetchSnapshot(ctx context.Context, projectID string) (*promotion.ProjectSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.snapshots[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", promotion.ErrNotFound, projectID)
	}
	return s.Clone(), nil
}

var _ promotion.SnapshotProvider = (*StaticProvider)(nil)
