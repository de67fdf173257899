// Package tts defines the Provider interface for speech synthesis backends.
//
// A TTS provider wraps a speech synthesis service (e.g., the OpenAI speech
// API or a local Piper instance) and turns prompt text into a playable
// [Clip]. Interview prompts are short and known ahead of time, so the
// interface is request/response rather than streaming; the interview layer
// caches clips per session to avoid duplicate synthesis cost.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"time"
)

// Clip is a synthesized audio artifact ready to be played over a transport.
// The payload is raw little-endian 16-bit PCM.
type Clip struct {
	// PCM audio data, interleaved little-endian int16 samples.
	PCM []byte

	// SampleRate in Hz (e.g., 24000 for OpenAI speech, 48000 for room output).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Duration returns the playback length of the clip. Returns 0 for a clip
// with unknown or invalid framing.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := len(c.PCM) / 2 / c.Channels
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// VoiceParams selects the voice used for synthesis.
type VoiceParams struct {
	// Voice is the provider-specific voice identifier (e.g., "alloy").
	Voice string

	// Speed adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	Speed float64
}

// Provider is the abstraction over any speech synthesis backend.
//
// Implementations must be safe for concurrent use; multiple interview
// sessions may synthesize prompts in parallel.
type Provider interface {
	// Synthesize converts text into a playable [Clip] using the given voice.
	//
	// Returns an error if the backend cannot be reached, rejects the request,
	// or ctx expires. Callers that must not block an interview on synthesis
	// failure are expected to degrade to a nil clip (see the voice prompt
	// cache) — Synthesize itself reports failures honestly.
	Synthesize(ctx context.Context, text string, voice VoiceParams) (*Clip, error)

	// Name returns a short provider identifier used in logs and metrics.
	Name() string
}
