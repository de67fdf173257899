// Package mock provides a scriptable in-memory transport.Transport for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/vivahq/viva/pkg/provider/tts"
	"github.com/vivahq/viva/pkg/transport"
)

// Transport is a mock transport. Tests push events with [Transport.Emit] and
// inspect what the engine sent with [Transport.SentAudio] / [Transport.SentText].
//
// All methods are safe for concurrent use.
type Transport struct {
	// JoinErr, when non-nil, is returned by Join.
	JoinErr error

	// ModeResult is returned by Mode. Defaults to transport.ModeEmbedded.
	ModeResult transport.Mode

	// OnSendAudio, when non-nil, is invoked for each SendAudio call.
	OnSendAudio func(clip *tts.Clip)

	// OnSendText, when non-nil, is invoked for each SendText call.
	OnSendText func(text string)

	mu        sync.Mutex
	events    chan transport.Event
	joined    bool
	left      bool
	sentAudio []*tts.Clip
	sentText  []string
}

// New creates a mock transport with a buffered event channel.
func New() *Transport {
	return &Transport{events: make(chan transport.Event, 64)}
}

// Join implements transport.Transport.
func (t *Transport) Join(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.JoinErr != nil {
		return t.JoinErr
	}
	t.joined = true
	return nil
}

// Leave implements transport.Transport. The event channel is closed on first
// call; subsequent calls are no-ops.
func (t *Transport) Leave(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.left {
		return nil
	}
	t.left = true
	close(t.events)
	return nil
}

// SendAudio implements transport.Transport.
func (t *Transport) SendAudio(_ context.Context, clip *tts.Clip) error {
	t.mu.Lock()
	left := t.left
	if !left {
		t.sentAudio = append(t.sentAudio, clip)
	}
	cb := t.OnSendAudio
	t.mu.Unlock()

	if left {
		return errors.New("mock transport: send after leave")
	}
	if cb != nil {
		cb(clip)
	}
	return nil
}

// SendText implements transport.Transport.
func (t *Transport) SendText(_ context.Context, text string) error {
	t.mu.Lock()
	left := t.left
	if !left {
		t.sentText = append(t.sentText, text)
	}
	cb := t.OnSendText
	t.mu.Unlock()

	if left {
		return errors.New("mock transport: send after leave")
	}
	if cb != nil {
		cb(text)
	}
	return nil
}

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Mode implements transport.Transport.
func (t *Transport) Mode() transport.Mode {
	if t.ModeResult != "" {
		return t.ModeResult
	}
	return transport.ModeEmbedded
}

// Emit delivers an event to the consumer. Emitting after Leave is a no-op so
// racing tests cannot panic on a closed channel.
func (t *Transport) Emit(ev transport.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.left {
		return
	}
	t.events <- ev
}

// EmitSpeech is shorthand for emitting a final speech fragment.
func (t *Transport) EmitSpeech(text, speakerLabel string) {
	t.Emit(transport.Event{
		Type:         transport.EventSpeech,
		Text:         text,
		IsFinal:      true,
		SpeakerLabel: speakerLabel,
	})
}

// EmitJoined is shorthand for emitting a participant-joined event.
func (t *Transport) EmitJoined(participant string) {
	t.Emit(transport.Event{Type: transport.EventJoined, Participant: participant})
}

// Joined reports whether Join was called successfully.
func (t *Transport) Joined() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.joined
}

// Left reports whether Leave was called.
func (t *Transport) Left() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.left
}

// SentAudio returns every clip passed to SendAudio, in call order.
func (t *Transport) SentAudio() []*tts.Clip {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*tts.Clip, len(t.sentAudio))
	copy(out, t.sentAudio)
	return out
}

// SentText returns every message passed to SendText, in call order.
func (t *Transport) SentText() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sentText))
	copy(out, t.sentText)
	return out
}
