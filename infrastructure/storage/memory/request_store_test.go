package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/storage/memory"
	"github.com/felixgeelhaar/promote/infrastructure/storage/storetest"
)

func TestRequestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) promotion.Store {
		return memory.NewRequestStore()
	})
}

func TestNewRequestStore(t *testing.T) {
	t.Parallel()

	store := memory.NewRequestStore()
	if store == nil {
		t.Fatal("NewRequestStore() returned nil")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for new store", store.Len())
	}
}

func TestRequestStore_CreateRejectsEmptyID(t *testing.T) {
	t.Parallel()

	store := memory.NewRequestStore()
	err := store.Create(context.Background(), storetest.NewRequest("", "alice", 0))
	if !errors.Is(err, promotion.ErrInvalidRequest) {
		t.Errorf("Create() error = %v, want ErrInvalidRequest", err)
	}
	if err := store.Create(context.Background(), nil); !errors.Is(err, promotion.ErrInvalidRequest) {
		t.Errorf("Create(nil) error = %v, want ErrInvalidRequest", err)
	}
}

func TestRequestStore_MutateRejectsIDChange(t *testing.T) {
	t.Parallel()

	store := memory.NewRequestStore()
	ctx := context.Background()
	if err := store.Create(ctx, storetest.NewRequest("pr-1", "alice", 0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err := store.Mutate(ctx, "pr-1", func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
		current.ID = "pr-2"
		return current, nil
	})
	if !errors.Is(err, promotion.ErrInvalidRequest) {
		t.Errorf("Mutate() error = %v, want ErrInvalidRequest", err)
	}

	_, err = store.Mutate(ctx, "pr-1", func(*promotion.PullRequest) (*promotion.PullRequest, error) {
		return nil, nil
	})
	if !errors.Is(err, promotion.ErrInvalidRequest) {
		t.Errorf("Mutate(nil result) error = %v, want ErrInvalidRequest", err)
	}
}

func TestRequestStore_IndexesFollowMutations(t *testing.T) {
	t.Parallel()

	store := memory.NewRequestStore()
	ctx := context.Background()
	if err := store.Create(ctx, storetest.NewRequest("pr-1", "alice", 0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	engine := promotion.NewEngine(nil)
	apply := func(cmd promotion.Command) {
		t.Helper()
		_, err := store.Mutate(ctx, "pr-1", func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
			out, err := engine.Apply(current, cmd)
			if err != nil {
				return nil, err
			}
			return out.Request, nil
		})
		if err != nil {
			t.Fatalf("%s: %v", cmd.Action, err)
		}
	}
	count := func(filter promotion.ListFilter) int {
		t.Helper()
		_, total, err := store.List(ctx, filter)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		return total
	}

	at := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	apply(promotion.Command{Action: promotion.ActionSubmit, Actor: "alice", At: at})
	if n := count(promotion.ListFilter{Levels: []promotion.Level{promotion.Level1}}); n != 1 {
		t.Errorf("level1 queue = %d, want 1", n)
	}

	apply(promotion.Command{Action: promotion.ActionApprove, Actor: "bob", At: at.Add(time.Hour)})
	if n := count(promotion.ListFilter{Levels: []promotion.Level{promotion.Level1}}); n != 0 {
		t.Errorf("level1 queue after escalation = %d, want 0", n)
	}
	if n := count(promotion.ListFilter{Levels: []promotion.Level{promotion.Level2}, Status: []promotion.Status{promotion.StatusReviewing}}); n != 1 {
		t.Errorf("level2 queue = %d, want 1", n)
	}
	if n := count(promotion.ListFilter{Applicant: "alice", Status: []promotion.Status{promotion.StatusPending}}); n != 0 {
		t.Errorf("alice pending = %d, want 0", n)
	}

	apply(promotion.Command{Action: promotion.ActionApprove, Actor: "carol", At: at.Add(2 * time.Hour)})
	if n := count(promotion.ListFilter{Levels: []promotion.Level{promotion.Level2}}); n != 0 {
		t.Errorf("level2 queue after approval = %d, want 0", n)
	}
	if n := count(promotion.ListFilter{Applicant: "alice", Status: []promotion.Status{promotion.StatusApproved}}); n != 1 {
		t.Errorf("alice approved = %d, want 1", n)
	}
}

func TestRequestStore_CanceledContext(t *testing.T) {
	t.Parallel()

	store := memory.NewRequestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Create(ctx, storetest.NewRequest("pr-1", "alice", 0)); !errors.Is(err, context.Canceled) {
		t.Errorf("Create() error = %v, want context.Canceled", err)
	}
	if _, err := store.Get(ctx, "pr-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if _, _, err := store.List(ctx, promotion.ListFilter{}); !errors.Is(err, context.Canceled) {
		t.Errorf("List() error = %v, want context.Canceled", err)
	}
}
