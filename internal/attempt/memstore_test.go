package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegisterStartClaimsExactlyOnce(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	ctx := context.Background()

	ok, err := reg.CanStart(ctx, "ada@example.com", "backend-engineer")
	if err != nil || !ok {
		t.Fatalf("CanStart = %v, %v; want true, nil", ok, err)
	}

	if err := reg.RegisterStart(ctx, "ada@example.com", "backend-engineer", "sess-1"); err != nil {
		t.Fatalf("RegisterStart: %v", err)
	}
	if err := reg.RegisterStart(ctx, "ada@example.com", "backend-engineer", "sess-2"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Fatalf("second RegisterStart = %v, want ErrAlreadyAttempted", err)
	}

	// Same candidate, different role is a fresh attempt.
	if err := reg.RegisterStart(ctx, "ada@example.com", "sre", "sess-3"); err != nil {
		t.Fatalf("RegisterStart other role: %v", err)
	}
}

func TestRegisterStartConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	ctx := context.Background()

	const racers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.RegisterStart(ctx, "ada@example.com", "backend-engineer", "sess") == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d racers won, want exactly 1", wins)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	ctx := context.Background()
	email, role := "ada@example.com", "backend-engineer"

	if err := reg.RegisterStart(ctx, email, role, "sess-1"); err != nil {
		t.Fatalf("RegisterStart: %v", err)
	}
	if err := reg.MarkInProgress(ctx, email, role); err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	rec, err := reg.Get(ctx, email, role)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("status = %s, want in_progress", rec.Status)
	}

	if err := reg.MarkCompleted(ctx, email, role, 8.2, "strong on systems design"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	rec, _ = reg.Get(ctx, email, role)
	if rec.Status != StatusCompleted || rec.Score != 8.2 {
		t.Fatalf("record = %+v, want completed with score 8.2", rec)
	}

	// MarkInProgress after completion must not regress.
	if err := reg.MarkInProgress(ctx, email, role); err != nil {
		t.Fatalf("MarkInProgress on completed: %v", err)
	}
	rec, _ = reg.Get(ctx, email, role)
	if rec.Status != StatusCompleted {
		t.Fatalf("status regressed to %s", rec.Status)
	}
}

func TestMarkOnMissingAttempt(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	ctx := context.Background()

	if err := reg.MarkInProgress(ctx, "ghost@example.com", "sre"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkInProgress = %v, want ErrNotFound", err)
	}
	if _, err := reg.Get(ctx, "ghost@example.com", "sre"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestReapAbandoned(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return base }

	_ = reg.RegisterStart(ctx, "old@example.com", "sre", "sess-old")
	_ = reg.RegisterStart(ctx, "done@example.com", "sre", "sess-done")
	_ = reg.MarkCompleted(ctx, "done@example.com", "sre", 7, "fine")

	reg.now = func() time.Time { return base.Add(time.Hour) }
	_ = reg.RegisterStart(ctx, "fresh@example.com", "sre", "sess-fresh")

	n, err := reg.ReapAbandoned(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("ReapAbandoned: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}

	rec, _ := reg.Get(ctx, "old@example.com", "sre")
	if rec.Status != StatusAbandoned {
		t.Errorf("old attempt status = %s, want abandoned", rec.Status)
	}
	rec, _ = reg.Get(ctx, "fresh@example.com", "sre")
	if rec.Status != StatusStarted {
		t.Errorf("fresh attempt status = %s, want started", rec.Status)
	}

	// Abandonment does not re-open the gate.
	if err := reg.RegisterStart(ctx, "old@example.com", "sre", "sess-again"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("RegisterStart after abandon = %v, want ErrAlreadyAttempted", err)
	}
}

func TestMarkCompletedAfterAbandonIsRejected(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return base }
	_ = reg.RegisterStart(ctx, "ada@example.com", "sre", "sess-1")

	reg.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := reg.ReapAbandoned(ctx, 30*time.Minute); err != nil {
		t.Fatalf("ReapAbandoned: %v", err)
	}

	// A completion landing after the reaper must not move the record forward.
	if err := reg.MarkCompleted(ctx, "ada@example.com", "sre", 9.1, "great"); !errors.Is(err, ErrAbandoned) {
		t.Fatalf("MarkCompleted after abandon = %v, want ErrAbandoned", err)
	}
	rec, _ := reg.Get(ctx, "ada@example.com", "sre")
	if rec.Status != StatusAbandoned {
		t.Errorf("status = %s, want abandoned", rec.Status)
	}
	if rec.Score != 0 || rec.Summary != "" {
		t.Errorf("abandoned record picked up a verdict: %+v", rec)
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusStarted, StatusInProgress, StatusCompleted, StatusAbandoned} {
		if !s.IsValid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if Status("paused").IsValid() {
		t.Error("unknown status should be invalid")
	}
	if StatusStarted.Terminal() || StatusInProgress.Terminal() {
		t.Error("started/in_progress must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusAbandoned.Terminal() {
		t.Error("completed/abandoned must be terminal")
	}
}
