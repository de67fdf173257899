package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrChainExhausted is returned when every entry in a [Chain] fails or is
// rejected by its breaker.
var ErrChainExhausted = errors.New("resilience: all providers failed")

type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain tries a primary provider and then its fallbacks, in registration
// order, each guarded by its own [Breaker].
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     BreakerConfig
}

// NewChain creates a chain with primary as the first entry. Per-entry
// breakers copy cfg, with the entry name substituted.
func NewChain[T any](primaryName string, primary T, cfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback provider. Fallbacks are tried after the primary in
// the order added.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.cfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Names returns the entry names in try order.
func (c *Chain[T]) Names() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.name
	}
	return out
}

// Run tries fn against each entry until one succeeds. Entries with open
// breakers are skipped. A cancelled ctx stops the walk immediately.
// Returns [ErrChainExhausted] wrapping the last failure when nothing succeeds.
func Run[T, R any](ctx context.Context, c *Chain[T], fn func(ctx context.Context, v T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		entry := &c.entries[i]

		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(ctx, entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrChainExhausted, lastErr)
}
