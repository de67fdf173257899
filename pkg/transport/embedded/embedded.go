// Package embedded implements transport.Transport against the in-process
// real-time room server.
//
// The room server speaks a small JSON protocol over a single WebSocket:
// participants announce themselves with a "join" message, the server pushes
// "joined"/"left"/"speech" notifications, and binary frames carry Opus audio
// towards the room. This is the default transport when no external
// meeting-bot vendor is configured.
package embedded

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/vivahq/viva/pkg/provider/tts"
	"github.com/vivahq/viva/pkg/transport"
)

// eventBuffer is the depth of the event channel handed to the engine. Sized
// to absorb a burst of interim transcript fragments without blocking the
// read loop.
const eventBuffer = 64

// Transport is the embedded room client. Create one per session with [New].
type Transport struct {
	roomURL      string
	speakerLabel string

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan transport.Event
	closed bool

	enc *opusEncoder
}

// Compile-time check that *Transport satisfies [transport.Transport].
var _ transport.Transport = (*Transport)(nil)

// Option is a functional option for [Transport].
type Option func(*Transport)

// WithSpeakerLabel sets the label the room attributes to audio sent by this
// client. Default: "interviewer".
func WithSpeakerLabel(label string) Option {
	return func(t *Transport) {
		t.speakerLabel = label
	}
}

// New creates an embedded room transport for the given room WebSocket URL.
func New(roomURL string, opts ...Option) (*Transport, error) {
	if roomURL == "" {
		return nil, fmt.Errorf("embedded: roomURL must not be empty")
	}
	t := &Transport{
		roomURL:      roomURL,
		speakerLabel: "interviewer",
		events:       make(chan transport.Event, eventBuffer),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// ─── wire messages ────────────────────────────────────────────────────────────

// clientMessage is the JSON payload sent to the room server.
type clientMessage struct {
	Type  string `json:"type"` // "join" | "caption"
	Label string `json:"label,omitempty"`
	Text  string `json:"text,omitempty"`
}

// serverMessage is the JSON payload received from the room server.
type serverMessage struct {
	Type        string `json:"type"` // "joined" | "left" | "speech" | "error"
	Participant string `json:"participant,omitempty"`
	Text        string `json:"text,omitempty"`
	IsFinal     bool   `json:"is_final,omitempty"`
	Speaker     string `json:"speaker,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ─── transport.Transport ──────────────────────────────────────────────────────

// Join implements transport.Transport. It dials the room server, announces
// this client, and starts the read loop that feeds the event channel.
func (t *Transport) Join(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, t.roomURL, nil)
	if err != nil {
		return fmt.Errorf("embedded: dial room: %w", err)
	}

	join, _ := json.Marshal(clientMessage{Type: "join", Label: t.speakerLabel})
	if err := conn.Write(ctx, websocket.MessageText, join); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return fmt.Errorf("embedded: announce join: %w", err)
	}

	enc, err := newOpusEncoder()
	if err != nil {
		conn.Close(websocket.StatusInternalError, "encoder init failed")
		return fmt.Errorf("embedded: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.enc = enc
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

// Leave implements transport.Transport.
func (t *Transport) Leave(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn != nil {
		_ = t.conn.Close(websocket.StatusNormalClosure, "interview finished")
		t.conn = nil
	}
	close(t.events)
	return nil
}

// SendAudio implements transport.Transport. The clip is re-framed to the
// room's 48 kHz stereo format and sent as Opus packets in binary frames.
func (t *Transport) SendAudio(ctx context.Context, clip *tts.Clip) error {
	if clip == nil || len(clip.PCM) == 0 {
		return nil
	}

	t.mu.Lock()
	conn, enc := t.conn, t.enc
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("embedded: send audio: not joined")
	}

	frames, err := enc.encodeClip(clip)
	if err != nil {
		return fmt.Errorf("embedded: %w", err)
	}
	for _, frame := range frames {
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			return fmt.Errorf("embedded: send audio frame: %w", err)
		}
	}
	return nil
}

// SendText implements transport.Transport. Text is delivered as a caption
// visible in the room UI.
func (t *Transport) SendText(ctx context.Context, text string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("embedded: send text: not joined")
	}

	msg, _ := json.Marshal(clientMessage{Type: "caption", Label: t.speakerLabel, Text: text})
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("embedded: send caption: %w", err)
	}
	return nil
}

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Mode implements transport.Transport.
func (t *Transport) Mode() transport.Mode {
	return transport.ModeEmbedded
}

// ─── read loop ────────────────────────────────────────────────────────────────

// readLoop translates server messages into transport events until the
// connection drops. A read error after Leave is the normal shutdown path; a
// read error before Leave is surfaced as EventErrored.
func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			t.fail(fmt.Errorf("embedded: room connection lost: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("embedded: dropping malformed room message", "err", err)
			continue
		}

		switch msg.Type {
		case "joined":
			t.emit(transport.Event{Type: transport.EventJoined, Participant: msg.Participant})
		case "left":
			t.emit(transport.Event{Type: transport.EventLeft, Participant: msg.Participant})
		case "speech":
			t.emit(transport.Event{
				Type:         transport.EventSpeech,
				Text:         msg.Text,
				IsFinal:      msg.IsFinal,
				SpeakerLabel: msg.Speaker,
			})
		case "error":
			t.fail(fmt.Errorf("embedded: room error: %s", msg.Message))
			return
		default:
			slog.Debug("embedded: ignoring unknown room message", "type", msg.Type)
		}
	}
}

// emit delivers an event unless the transport has been closed.
func (t *Transport) emit(ev transport.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		slog.Warn("embedded: event channel full, dropping event", "type", ev.Type.String())
	}
}

// fail emits EventErrored and closes the channel, unless Leave already ran.
func (t *Transport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	select {
	case t.events <- transport.Event{Type: transport.EventErrored, Err: err}:
	default:
	}
	if t.conn != nil {
		_ = t.conn.Close(websocket.StatusInternalError, "transport error")
		t.conn = nil
	}
	close(t.events)
}
