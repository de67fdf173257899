package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 2, Cooldown: time.Hour})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}
	if !b.Open() {
		t.Fatal("breaker should be open after threshold failures")
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Hour})
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return boom })
	if b.Open() {
		t.Fatal("non-consecutive failures should not trip the breaker")
	}
}

func TestBreakerProbeClosesAfterCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: 10 * time.Millisecond})
	_ = b.Do(func() error { return errors.New("boom") })
	if !b.Open() {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("breaker should be closed after successful probe: %v", err)
	}
}

func TestChainFallsBack(t *testing.T) {
	t.Parallel()

	type speaker func() (string, error)
	primary := speaker(func() (string, error) { return "", errors.New("down") })
	backup := speaker(func() (string, error) { return "hello", nil })

	c := NewChain("primary", primary, BreakerConfig{Threshold: 5})
	c.Add("backup", backup)

	got, err := Run(context.Background(), c, func(_ context.Context, s speaker) (string, error) {
		return s()
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestChainExhausted(t *testing.T) {
	t.Parallel()

	c := NewChain("only", 1, BreakerConfig{})
	_, err := Run(context.Background(), c, func(_ context.Context, _ int) (string, error) {
		return "", errors.New("down")
	})
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("err = %v, want ErrChainExhausted", err)
	}
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	c := NewChain("only", 1, BreakerConfig{})
	_, err := Run(ctx, c, func(_ context.Context, _ int) (string, error) {
		calls++
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("fn called %d times after cancellation", calls)
	}
}
