// Package transport defines the interfaces and types for interview transport
// connectivity.
//
// A Transport is the session's two-way channel to the candidate: it joins the
// meeting surface, plays synthesized prompts, and reports what the candidate
// says. The three backends — embedded real-time room, headless meeting-room
// bot, and cloud recording bot — are provided by adapter subpackages and are
// interchangeable behind this interface.
//
// Transports deliver everything they observe as typed [Event] values on a
// single per-session channel. The turn engine is the only consumer of that
// channel, which keeps event handling free of re-entrant callback races.
//
// This package lives under pkg/ because external code (third-party meeting
// adapters) is expected to implement [Transport].
package transport

import (
	"context"

	"github.com/vivahq/viva/pkg/provider/tts"
)

// Mode identifies which transport backend drives a session. The mode is
// chosen once at session creation and never changes for that session.
type Mode string

const (
	// ModeEmbedded is the in-process real-time audio/video room client.
	ModeEmbedded Mode = "embedded-room"

	// ModeHeadless is the headless-browser meeting-room bot.
	ModeHeadless Mode = "headless-bot"

	// ModeCloud is the cloud-hosted recording bot.
	ModeCloud Mode = "cloud-bot"
)

// IsValid reports whether m is a recognised transport mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeEmbedded, ModeHeadless, ModeCloud:
		return true
	}
	return false
}

// SelectMode returns the transport mode for a new session.
//
// Selection order: the embedded room is preferred when no external
// meeting-bot credentials are configured at all; otherwise the cloud
// recording bot when its transcription features are configured; otherwise
// the headless meeting-room bot.
func SelectMode(botCredentialsConfigured, cloudTranscriptionConfigured bool) Mode {
	switch {
	case !botCredentialsConfigured:
		return ModeEmbedded
	case cloudTranscriptionConfigured:
		return ModeCloud
	default:
		return ModeHeadless
	}
}

// EventType classifies events emitted by a [Transport].
type EventType int

const (
	// EventJoined is emitted when a participant enters the session.
	EventJoined EventType = iota

	// EventLeft is emitted when a participant leaves the session.
	EventLeft

	// EventSpeech is emitted for each transcribed speech or chat fragment.
	EventSpeech

	// EventErrored is emitted when the transport fails irrecoverably
	// (unexpected disconnect, stream failure). The transport closes its
	// event channel after emitting this.
	EventErrored
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoined:
		return "JOINED"
	case EventLeft:
		return "LEFT"
	case EventSpeech:
		return "SPEECH"
	case EventErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// Event is one observation delivered by a [Transport].
type Event struct {
	// Type indicates what happened.
	Type EventType

	// Participant is the display name or platform ID of the participant that
	// joined or left. Set for EventJoined and EventLeft.
	Participant string

	// Text is the transcribed fragment. Set for EventSpeech.
	Text string

	// IsFinal reports whether the capture backend considers the fragment a
	// finalised segment rather than an interim hypothesis.
	IsFinal bool

	// SpeakerLabel attributes a speech fragment to a speaker. Fragments
	// labelled with the interviewer's own label must be ignored by consumers.
	SpeakerLabel string

	// Err carries the failure for EventErrored.
	Err error
}

// Transport is one session's connection to the candidate-facing meeting
// surface.
//
// Lifecycle: Join once, then SendAudio/SendText freely while consuming
// Events, then Leave exactly once. After Leave (or a fatal transport error)
// the Events channel is closed.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	// Join connects to the meeting surface. The supplied ctx governs the
	// connection attempt only; once joined, the transport stays connected
	// until Leave is called.
	Join(ctx context.Context) error

	// Leave tears the connection down and closes the Events channel. It is
	// safe to call Leave more than once; subsequent calls are no-ops.
	Leave(ctx context.Context) error

	// SendAudio plays a synthesized clip to the candidate. A nil clip is a
	// no-op (callers use nil when synthesis degraded). SendAudio returns once
	// the clip has been handed to the backend, not when playback finishes.
	SendAudio(ctx context.Context, clip *tts.Clip) error

	// SendText delivers a text message (caption, chat, acknowledgment).
	SendText(ctx context.Context, text string) error

	// Events returns the transport's event channel. The same channel is
	// returned for the lifetime of the transport. It is closed on Leave or
	// after an EventErrored.
	Events() <-chan Event

	// Mode identifies the backend implementing this transport.
	Mode() Mode
}
