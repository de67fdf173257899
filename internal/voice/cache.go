// Package voice turns scripted prompt text into playable audio, caching the
// result so each distinct prompt is synthesized at most once per session.
//
// Synthesis failures never stall an interview: when every provider in the
// fallback chain fails, [Cache.Resolve] returns a nil clip and the caller
// falls back to text delivery.
package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vivahq/viva/internal/resilience"
	"github.com/vivahq/viva/pkg/provider/tts"
)

// defaultSynthesisTimeout bounds a single synthesis attempt so a hung
// provider cannot freeze the question flow.
const defaultSynthesisTimeout = 20 * time.Second

// Cache is a per-session voice prompt cache backed by a provider fallback
// chain.
//
// All methods are safe for concurrent use.
type Cache struct {
	chain   *resilience.Chain[tts.Provider]
	voice   tts.VoiceParams
	timeout time.Duration

	mu    sync.Mutex
	clips map[string]*tts.Clip
}

// Option is a functional option for [Cache].
type Option func(*Cache)

// WithVoice selects the synthesis voice passed to providers.
func WithVoice(voice tts.VoiceParams) Option {
	return func(c *Cache) {
		c.voice = voice
	}
}

// WithSynthesisTimeout overrides the per-attempt synthesis timeout.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a cache over the given provider chain.
func New(chain *resilience.Chain[tts.Provider], opts ...Option) *Cache {
	c := &Cache{
		chain:   chain,
		timeout: defaultSynthesisTimeout,
		clips:   make(map[string]*tts.Clip),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewChain assembles the provider fallback chain a cache runs on. The
// primary is tried first, then fallbacks in order.
func NewChain(primary tts.Provider, fallbacks ...tts.Provider) *resilience.Chain[tts.Provider] {
	chain := resilience.NewChain(primary.Name(), primary, resilience.BreakerConfig{
		Threshold: 3,
		Cooldown:  30 * time.Second,
	})
	for _, fb := range fallbacks {
		chain.Add(fb.Name(), fb)
	}
	return chain
}

// Resolve returns the clip for text, synthesizing on first use. On total
// synthesis failure it logs and returns nil; the nil clip is NOT cached, so a
// later Resolve of the same text retries.
func (c *Cache) Resolve(ctx context.Context, text string) *tts.Clip {
	c.mu.Lock()
	if clip, ok := c.clips[text]; ok {
		c.mu.Unlock()
		return clip
	}
	c.mu.Unlock()

	clip, err := c.synthesize(ctx, text)
	if err != nil {
		slog.Warn("voice: synthesis failed, degrading to text delivery", "err", err)
		return nil
	}

	c.mu.Lock()
	c.clips[text] = clip
	c.mu.Unlock()
	return clip
}

// Prepare synthesizes every text up front so the first question plays
// without a synthesis pause. Individual failures are logged and skipped;
// Resolve will retry them at ask time.
func (c *Cache) Prepare(ctx context.Context, texts []string) {
	for _, text := range texts {
		if ctx.Err() != nil {
			return
		}
		_ = c.Resolve(ctx, text)
	}
}

// Len returns the number of cached clips.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clips)
}

func (c *Cache) synthesize(parent context.Context, text string) (*tts.Clip, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	start := time.Now()
	clip, err := resilience.Run(ctx, c.chain, func(ctx context.Context, p tts.Provider) (*tts.Clip, error) {
		return p.Synthesize(ctx, text, c.voice)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("voice: synthesized prompt",
		"chars", len(text),
		"clip_ms", clip.Duration().Milliseconds(),
		"took", time.Since(start))
	return clip, nil
}
