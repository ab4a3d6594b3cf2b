package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/storage/memory"
)

// Test helpers

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type sequence struct {
	mu sync.Mutex
	n  int
}

func (s *sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%03d", s.n)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*notification.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event *notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) NotifyBatch(ctx context.Context, events []*notification.Event) error {
	for _, e := range events {
		if err := n.Notify(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) byType() map[notification.EventType][]*notification.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[notification.EventType][]*notification.Event)
	for _, e := range n.events {
		out[e.Type] = append(out[e.Type], e)
	}
	return out
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	rejected    map[string]int
	completed   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{rejected: map[string]int{}, completed: map[string]int{}}
}

func (m *recordingMetrics) TransitionApplied(_ context.Context, action promotion.Action, from, to promotion.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, fmt.Sprintf("%s:%s->%s", action, from, to))
}

func (m *recordingMetrics) OperationRejected(_ context.Context, op, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[op+"/"+kind]++
}

func (m *recordingMetrics) OperationCompleted(_ context.Context, op string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[op]++
}

// rosterAuthorizer grants review per level and lists levels per actor.
type rosterAuthorizer struct {
	levels map[promotion.Level][]string
	err    error
}

func (a rosterAuthorizer) CanReview(_ context.Context, actor string, level promotion.Level, pr *promotion.PullRequest) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	if pr != nil && pr.Applicant == actor {
		return false, nil
	}
	for _, name := range a.levels[level] {
		if name == actor {
			return true, nil
		}
	}
	return false, nil
}

func (a rosterAuthorizer) LevelsFor(_ context.Context, actor string) ([]promotion.Level, error) {
	if a.err != nil {
		return nil, a.err
	}
	var out []promotion.Level
	for _, lvl := range []promotion.Level{promotion.Level1, promotion.Level2} {
		for _, name := range a.levels[lvl] {
			if name == actor {
				out = append(out, lvl)
				break
			}
		}
	}
	return out, nil
}

type snapshotFunc func(ctx context.Context, projectID string) (*promotion.ProjectSnapshot, error)

func (f snapshotFunc) FetchSnapshot(ctx context.Context, projectID string) (*promotion.ProjectSnapshot, error) {
	return f(ctx, projectID)
}

func newTestSnapshot(projectID string, completeness int) *promotion.ProjectSnapshot {
	return &promotion.ProjectSnapshot{
		ProjectID:    projectID,
		ProjectName:  "Office Tower " + projectID,
		Amount:       1_250_000,
		BuildingArea: 8400,
		Completeness: completeness,
		SubProjects: []promotion.SubProject{
			{ID: projectID + "-1", Name: "Podium", BuildingArea: 2400, Amount: 400_000},
			{ID: projectID + "-2", Name: "Tower", BuildingArea: 6000, Amount: 850_000},
		},
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.RequestStore) {
	t.Helper()
	store := memory.NewRequestStore()
	seq := &sequence{}
	base := []Option{
		WithClock(newStepClock().Now),
		WithIDGenerator(seq.Next),
	}
	svc, err := NewWorkflowService(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewWorkflowService() error = %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, store
}

func mustCreate(t *testing.T, svc *Service, completeness int) *promotion.PullRequest {
	t.Helper()
	pr, err := svc.Create(context.Background(), newTestSnapshot("p-1", completeness), "alice", promotion.SpaceEnterprise, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return pr
}

// reach drives a fresh request to status.
func reach(t *testing.T, svc *Service, status promotion.Status) *promotion.PullRequest {
	t.Helper()
	ctx := context.Background()
	pr := mustCreate(t, svc, 90)
	if status == promotion.StatusDraft {
		return pr
	}

	step := func(pr *promotion.PullRequest, err error) *promotion.PullRequest {
		t.Helper()
		if err != nil {
			t.Fatalf("reach %s: %v", status, err)
		}
		return pr
	}

	pr = step(svc.Submit(ctx, pr.ID, "alice", ""))
	switch status {
	case promotion.StatusPending:
	case promotion.StatusReviewing:
		pr = step(svc.Review(ctx, pr.ID, "bob", promotion.ActionApprove, "", ""))
	case promotion.StatusApproved:
		pr = step(svc.Review(ctx, pr.ID, "bob", promotion.ActionApprove, "", ""))
		pr = step(svc.Review(ctx, pr.ID, "carol", promotion.ActionApprove, "", ""))
	case promotion.StatusRejected:
		pr = step(svc.Review(ctx, pr.ID, "bob", promotion.ActionReject, "duplicate", ""))
	case promotion.StatusReturned:
		pr = step(svc.Review(ctx, pr.ID, "bob", promotion.ActionReturn, "fix area", ""))
	default:
		t.Fatalf("reach: unsupported status %s", status)
	}
	if pr.Status != status {
		t.Fatalf("reach: got %s, want %s", pr.Status, status)
	}
	return pr
}

func actions(records []promotion.ReviewRecord) []promotion.Action {
	out := make([]promotion.Action, len(records))
	for i, r := range records {
		out[i] = r.Action
	}
	return out
}
