package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/pipeline"
)

// steppedClock 每次调用前进一秒，保证更新时间严格递增。
func steppedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	store.now = steppedClock(time.Unix(1_700_000_000, 0))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, &Job{ID: id, Status: StatusPending, MaxRetries: 3}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := store.Claim(ctx, "b"); err != nil {
		t.Fatalf("claim b: %v", err)
	}
	if err := store.MarkFailed(ctx, "b", xerrors.CodeCollaboratorFailure, "boom", Outcome{Capability: "chatbot"}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "c"); err != nil {
		t.Fatalf("claim c: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", Outcome{Capability: "researcher", Response: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	return store
}

func ids(jobs []*Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, ids(all)); diff != "" {
		t.Fatalf("newest first mismatch (-want +got):\n%s", diff)
	}

	asc, _ := store.List(ctx, BuildListOptions(WithSortOrder(SortByUpdatedAsc), WithLimit(2)))
	if diff := cmp.Diff([]string{"a", "b"}, ids(asc)); diff != "" {
		t.Fatalf("ascending mismatch (-want +got):\n%s", diff)
	}

	failed, _ := store.List(ctx, BuildListOptions(WithStatuses(StatusFailed, "bogus")))
	if diff := cmp.Diff([]string{"b"}, ids(failed)); diff != "" {
		t.Fatalf("status filter mismatch (-want +got):\n%s", diff)
	}

	research, _ := store.List(ctx, BuildListOptions(WithCapability("researcher")))
	if diff := cmp.Diff([]string{"c"}, ids(research)); diff != "" {
		t.Fatalf("capability filter mismatch (-want +got):\n%s", diff)
	}

	page, _ := store.List(ctx, BuildListOptions(WithOffset(5)))
	if len(page) != 0 {
		t.Fatalf("expected empty page, got %v", ids(page))
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := seedStore(t)
	stats, err := store.Stats(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{Total: 3, Pending: 1, Succeeded: 1, Failed: 1, OldestUpdatedAt: 1_700_000_001, NewestUpdatedAt: 1_700_000_007}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreClaimRules(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Job{ID: "x", Status: StatusPending, MaxRetries: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Job{ID: "x"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	claimed, err := store.Claim(ctx, "x")
	if err != nil || claimed.Attempts != 1 || claimed.Status != StatusRunning {
		t.Fatalf("unexpected claim: %+v %v", claimed, err)
	}
	if _, err := store.Claim(ctx, "x"); !errors.Is(err, ErrConflict) {
		t.Fatalf("running job should conflict, got %v", err)
	}
	_ = store.MarkFailed(ctx, "x", xerrors.CodeCollaboratorFailure, "falhou", Outcome{})
	if _, err := store.Claim(ctx, "x"); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Create(ctx, &Job{ID: "x", Input: pipeline.Input{Query: "q"}, Status: StatusPending, MaxRetries: 1})

	got, _ := store.Get(ctx, "x")
	got.Status = StatusSucceeded
	again, _ := store.Get(ctx, "x")
	if again.Status != StatusPending {
		t.Fatal("mutating a returned job must not affect the store")
	}
}
