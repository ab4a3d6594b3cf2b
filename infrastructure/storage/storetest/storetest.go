// Package storetest provides a conformance suite for promotion.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) promotion.Store

var base = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

// NewRequest builds a draft request created at base+offset.
func NewRequest(id, applicant string, offset time.Duration) *promotion.PullRequest {
	floors := 6
	snap := &promotion.ProjectSnapshot{
		ProjectID:    "proj-" + id,
		ProjectName:  "Project " + id,
		Amount:       500_000,
		BuildingArea: 1200.5,
		Completeness: 90,
		SubProjects: []promotion.SubProject{
			{ID: id + "-a", Name: "Block A", BuildingArea: 600, AboveGroundFloors: &floors, Amount: 250_000},
		},
	}
	return promotion.NewPullRequest(id, snap, "", promotion.SpaceDepartment, applicant, base.Add(offset))
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("MutateApplies", func(t *testing.T) { testMutateApplies(t, newStore(t)) })
	t.Run("MutateErrorLeavesRecord", func(t *testing.T) { testMutateErrorLeavesRecord(t, newStore(t)) })
	t.Run("MutateMissing", func(t *testing.T) { testMutateMissing(t, newStore(t)) })
	t.Run("Isolation", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("ListPaging", func(t *testing.T) { testListPaging(t, newStore(t)) })
	t.Run("ConcurrentMutations", func(t *testing.T) { testConcurrentMutations(t, newStore(t)) })
	t.Run("ReviewWithdrawRace", func(t *testing.T) { testReviewWithdrawRace(t, newStore(t)) })
}

func mustCreate(t *testing.T, s promotion.Store, pr *promotion.PullRequest) {
	t.Helper()
	if err := s.Create(context.Background(), pr); err != nil {
		t.Fatalf("Create(%s) error = %v", pr.ID, err)
	}
}

// submit moves a stored draft to pending through the engine.
func submit(t *testing.T, s promotion.Store, id string, at time.Time) *promotion.PullRequest {
	t.Helper()
	engine := promotion.NewEngine(nil)
	pr, err := s.Mutate(context.Background(), id, func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
		out, err := engine.Apply(current, promotion.Command{Action: promotion.ActionSubmit, Actor: current.Applicant, At: at})
		if err != nil {
			return nil, err
		}
		return out.Request, nil
	})
	if err != nil {
		t.Fatalf("submit %s: %v", id, err)
	}
	return pr
}

func testCreateAndGet(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	pr := NewRequest("pr-1", "alice", 0)
	mustCreate(t, s, pr)

	got, err := s.Get(ctx, "pr-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != pr.ID || got.Applicant != "alice" || got.Status != promotion.StatusDraft {
		t.Errorf("Get() = %+v", got)
	}
	if got.Snapshot == nil || got.Snapshot.ProjectID != "proj-pr-1" || len(got.Snapshot.SubProjects) != 1 {
		t.Fatalf("snapshot not round-tripped: %+v", got.Snapshot)
	}
	if f := got.Snapshot.SubProjects[0].AboveGroundFloors; f == nil || *f != 6 {
		t.Errorf("optional sub-project field lost: %v", f)
	}
	if !got.CreatedAt.Equal(pr.CreatedAt) || !got.UpdatedAt.Equal(pr.UpdatedAt) {
		t.Errorf("timestamps = %v/%v, want %v/%v", got.CreatedAt, got.UpdatedAt, pr.CreatedAt, pr.UpdatedAt)
	}
	if got.Version != pr.Version {
		t.Errorf("Version = %d, want %d", got.Version, pr.Version)
	}
}

func testCreateDuplicate(t *testing.T, s promotion.Store) {
	mustCreate(t, s, NewRequest("pr-1", "alice", 0))
	err := s.Create(context.Background(), NewRequest("pr-1", "bob", 0))
	if !errors.Is(err, promotion.ErrAlreadyExists) {
		t.Errorf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}
}

func testGetMissing(t *testing.T, s promotion.Store) {
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, promotion.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func testMutateApplies(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewRequest("pr-1", "alice", 0))

	updated := submit(t, s, "pr-1", base.Add(time.Hour))
	if updated.Status != promotion.StatusPending || updated.CurrentLevel != promotion.Level1 {
		t.Fatalf("Mutate() returned %s/%q", updated.Status, updated.CurrentLevel)
	}

	got, err := s.Get(ctx, "pr-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != promotion.StatusPending || len(got.ReviewHistory) != 1 {
		t.Errorf("stored = %s with %d records", got.Status, len(got.ReviewHistory))
	}
	if got.ApplyTime == nil || !got.ApplyTime.Equal(base.Add(time.Hour)) {
		t.Errorf("ApplyTime = %v", got.ApplyTime)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
}

func testMutateErrorLeavesRecord(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewRequest("pr-1", "alice", 0))
	before, _ := s.Get(ctx, "pr-1")

	boom := errors.New("boom")
	_, err := s.Mutate(ctx, "pr-1", func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
		current.Title = "changed"
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Mutate() error = %v, want boom", err)
	}

	after, _ := s.Get(ctx, "pr-1")
	if after.Title != before.Title || after.Version != before.Version || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("failed mutation changed the stored record")
	}
}

func testMutateMissing(t *testing.T, s promotion.Store) {
	_, err := s.Mutate(context.Background(), "missing", func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
		return current, nil
	})
	if !errors.Is(err, promotion.ErrNotFound) {
		t.Errorf("Mutate(missing) error = %v, want ErrNotFound", err)
	}
}

func testIsolation(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	pr := NewRequest("pr-1", "alice", 0)
	mustCreate(t, s, pr)
	pr.Title = "caller edit"

	got, _ := s.Get(ctx, "pr-1")
	if got.Title == "caller edit" {
		t.Error("store shares memory with the created request")
	}
	got.Snapshot.Completeness = 1

	again, _ := s.Get(ctx, "pr-1")
	if again.Snapshot.Completeness != 90 {
		t.Error("store shares memory with a returned request")
	}
}

func testDelete(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewRequest("pr-1", "alice", 0))

	denied := errors.New("denied")
	if err := s.Delete(ctx, "pr-1", func(*promotion.PullRequest) error { return denied }); !errors.Is(err, denied) {
		t.Fatalf("Delete(check fails) error = %v", err)
	}
	if _, err := s.Get(ctx, "pr-1"); err != nil {
		t.Fatalf("record removed despite failed check: %v", err)
	}

	var seen string
	if err := s.Delete(ctx, "pr-1", func(current *promotion.PullRequest) error {
		seen = current.Applicant
		return nil
	}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if seen != "alice" {
		t.Errorf("check saw applicant %q", seen)
	}
	if _, err := s.Get(ctx, "pr-1"); !errors.Is(err, promotion.ErrNotFound) {
		t.Errorf("Get after delete error = %v", err)
	}
	if err := s.Delete(ctx, "pr-1", nil); !errors.Is(err, promotion.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func testListFilters(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewRequest("a1", "alice", 0))
	mustCreate(t, s, NewRequest("a2", "alice", time.Minute))
	mustCreate(t, s, NewRequest("b1", "bob", 2*time.Minute))
	submit(t, s, "a2", base.Add(time.Hour))
	submit(t, s, "b1", base.Add(2*time.Hour))

	tests := []struct {
		name    string
		filter  promotion.ListFilter
		wantIDs []string
	}{
		{"all", promotion.ListFilter{}, []string{"a1", "a2", "b1"}},
		{"applicant", promotion.ListFilter{Applicant: "alice"}, []string{"a1", "a2"}},
		{"applicant and status", promotion.ListFilter{Applicant: "alice", Status: []promotion.Status{promotion.StatusPending}}, []string{"a2"}},
		{"status", promotion.ListFilter{Status: []promotion.Status{promotion.StatusPending}}, []string{"a2", "b1"}},
		{"level index", promotion.ListFilter{Levels: []promotion.Level{promotion.Level1}, Status: []promotion.Status{promotion.StatusPending, promotion.StatusReviewing}}, []string{"a2", "b1"}},
		{"level2 empty", promotion.ListFilter{Levels: []promotion.Level{promotion.Level2}}, nil},
		{"target space", promotion.ListFilter{TargetSpace: promotion.SpaceEnterprise}, nil},
		{"created range", promotion.ListFilter{FromTime: base.Add(30 * time.Second), ToTime: base.Add(90 * time.Second)}, []string{"a2"}},
		{"apply time range", promotion.ListFilter{TimeField: promotion.TimeFieldApplied, FromTime: base.Add(90 * time.Minute)}, []string{"b1"}},
		{"descending", promotion.ListFilter{Descending: true}, []string{"b1", "a2", "a1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != len(tt.wantIDs) {
				t.Errorf("total = %d, want %d", total, len(tt.wantIDs))
			}
			if got := ids(items); fmt.Sprint(got) != fmt.Sprint(tt.wantIDs) {
				t.Errorf("List() ids = %v, want %v", got, tt.wantIDs)
			}
		})
	}
}

func testListPaging(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustCreate(t, s, NewRequest(fmt.Sprintf("pr-%d", i), "alice", time.Duration(i)*time.Minute))
	}

	items, total, err := s.List(ctx, promotion.ListFilter{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if got := ids(items); fmt.Sprint(got) != "[pr-1 pr-2]" {
		t.Errorf("page = %v, want [pr-1 pr-2]", got)
	}

	items, total, err = s.List(ctx, promotion.ListFilter{Offset: 10})
	if err != nil || total != 5 || len(items) != 0 {
		t.Errorf("offset past end = %v, %d, %v", ids(items), total, err)
	}
}

// testConcurrentMutations checks that no update is lost. Stores using
// optimistic concurrency may answer some calls with ErrConflict.
func testConcurrentMutations(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewRequest("pr-1", "alice", 0))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Mutate(ctx, "pr-1", func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
				current.ReviewHistory = append(current.ReviewHistory, promotion.ReviewRecord{
					ID:          fmt.Sprintf("rec-%d", i),
					Action:      promotion.ActionSubmit,
					Operator:    "alice",
					OperateTime: base,
				})
				current.Touch(base)
				return current, nil
			})
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errors.Is(err, promotion.ErrConflict):
			default:
				t.Errorf("Mutate() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "pr-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if succeeded == 0 {
		t.Fatal("no mutation succeeded")
	}
	if len(got.ReviewHistory) != succeeded {
		t.Errorf("history has %d records, %d mutations succeeded", len(got.ReviewHistory), succeeded)
	}
	if got.Version != int64(1+succeeded) {
		t.Errorf("Version = %d, want %d", got.Version, 1+succeeded)
	}
}

// testReviewWithdrawRace races a level1 review against a withdraw:
// exactly one may win.
func testReviewWithdrawRace(t *testing.T, s promotion.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewRequest("pr-1", "alice", 0))
	submit(t, s, "pr-1", base.Add(time.Minute))

	engine := promotion.NewEngine(nil)
	commands := []promotion.Command{
		{Action: promotion.ActionReject, Actor: "bob", Comment: "incomplete", At: base.Add(time.Hour)},
		{Action: promotion.ActionWithdraw, Actor: "alice", At: base.Add(time.Hour)},
	}

	errs := make([]error, len(commands))
	var wg sync.WaitGroup
	for i, cmd := range commands {
		wg.Add(1)
		go func(i int, cmd promotion.Command) {
			defer wg.Done()
			_, errs[i] = s.Mutate(ctx, "pr-1", func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
				out, err := engine.Apply(current, cmd)
				if err != nil {
					return nil, err
				}
				return out.Request, nil
			})
		}(i, cmd)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, promotion.ErrInvalidTransition), errors.Is(err, promotion.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d operations succeeded, want exactly 1 (errors: %v)", wins, errs)
	}

	got, _ := s.Get(ctx, "pr-1")
	if len(got.ReviewHistory) != 2 {
		t.Errorf("history has %d records, want 2", len(got.ReviewHistory))
	}
}

func ids(items []*promotion.PullRequest) []string {
	var out []string
	for _, pr := range items {
		out = append(out, pr.ID)
	}
	return out
}
