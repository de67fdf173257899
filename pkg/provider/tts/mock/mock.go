// Package mock provides a scriptable in-memory tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vivahq/viva/pkg/provider/tts"
)

// Provider is a mock tts.Provider. Configure SynthesizeFunc to control
// behaviour; by default every call returns a small non-nil clip.
//
// All methods are safe for concurrent use.
type Provider struct {
	// SynthesizeFunc, when non-nil, is invoked for each Synthesize call.
	SynthesizeFunc func(ctx context.Context, text string, voice tts.VoiceParams) (*tts.Clip, error)

	// NameResult is returned by Name. Defaults to "mock".
	NameResult string

	mu    sync.Mutex
	calls []string
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceParams) (*tts.Clip, error) {
	p.mu.Lock()
	p.calls = append(p.calls, text)
	p.mu.Unlock()

	if p.SynthesizeFunc != nil {
		return p.SynthesizeFunc(ctx, text, voice)
	}
	return &tts.Clip{PCM: []byte{0, 0, 0, 0}, SampleRate: 24000, Channels: 1}, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string {
	if p.NameResult != "" {
		return p.NameResult
	}
	return "mock"
}

// Calls returns the texts passed to Synthesize, in call order.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}
