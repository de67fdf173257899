package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/vivahq/viva/internal/attempt"
)

// Reaper sweeps stalled sessions into the abandoned state. A session is
// stalled when it is non-terminal and its UpdatedAt is older than MaxAge;
// since the engine touches the session on every transition and captured
// fragment, a stale UpdatedAt means nothing has happened for that long.
type Reaper struct {
	store    Store
	locks    *LockTable
	registry attempt.Registry

	// MaxAge is the staleness threshold.
	MaxAge time.Duration

	// Interval is the sweep period.
	Interval time.Duration

	// OnAbandon, when non-nil, is invoked once per reaped session.
	OnAbandon func(s *Session)
}

// NewReaper wires a reaper over the given store and registry.
func NewReaper(store Store, locks *LockTable, registry attempt.Registry, maxAge, interval time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		locks:    locks,
		registry: registry,
		MaxAge:   maxAge,
		Interval: interval,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 {
				slog.Info("reaper swept stalled sessions", "count", n)
			}
		}
	}
}

// Sweep runs one pass and returns how many sessions were abandoned. Sessions
// whose lock is held by a live engine are skipped; they will be revisited on
// the next tick if still stale.
func (r *Reaper) Sweep(ctx context.Context) int {
	unfinished, err := r.store.ListUnfinished(ctx)
	if err != nil {
		slog.Warn("reaper: list unfinished failed", "err", err)
		return 0
	}

	cutoff := time.Now().UTC().Add(-r.MaxAge)
	reaped := 0
	for _, s := range unfinished {
		if s.UpdatedAt.After(cutoff) {
			continue
		}
		if !r.locks.TryLock(s.ID) {
			continue
		}
		if r.abandon(ctx, s) {
			reaped++
		}
		r.locks.Unlock(s.ID)
		r.locks.Remove(s.ID)
	}

	if reaped > 0 {
		if _, err := r.registry.ReapAbandoned(ctx, r.MaxAge); err != nil {
			slog.Warn("reaper: registry reap failed", "err", err)
		}
	}
	return reaped
}

// abandon re-reads the session under the lock and flips it to abandoned.
func (r *Reaper) abandon(ctx context.Context, stale *Session) bool {
	s, err := r.store.Get(ctx, stale.ID)
	if err != nil {
		slog.Warn("reaper: reload session failed", "session_id", stale.ID, "err", err)
		return false
	}
	if s.State.Terminal() {
		return false
	}

	s.State = StateAbandoned
	s.Touch()
	if err := r.store.Save(ctx, s); err != nil {
		slog.Warn("reaper: save abandoned session failed", "session_id", s.ID, "err", err)
		return false
	}

	slog.Info("session abandoned",
		"session_id", s.ID,
		"role", s.Role,
		"last_activity", stale.UpdatedAt)
	if r.OnAbandon != nil {
		r.OnAbandon(s)
	}
	return true
}
