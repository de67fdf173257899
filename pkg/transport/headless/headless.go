// Package headless implements transport.Transport against a self-hosted
// headless-browser bot controller.
//
// The controller runs browser instances that join consumer meeting rooms as a
// regular participant. We drive one instance through a control WebSocket:
// JSON commands out ("join", "play", "say", "leave"), JSON notifications in
// (participant changes, transcribed speech). Audio is shipped inline in the
// "play" command as base64 PCM; the controller handles playback into the
// meeting's virtual microphone.
package headless

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

const eventBuffer = 64

// Transport drives one headless browser bot. Create one per session with [New].
type Transport struct {
	controlURL   string
	meetingURL   string
	botName      string
	speakerLabel string

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan transport.Event
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// Option is a functional option for [Transport].
type Option func(*Transport)

// WithBotName sets the display name used in the meeting. Default: "Interviewer".
func WithBotName(name string) Option {
	return func(t *Transport) {
		t.botName = name
	}
}

// WithSpeakerLabel sets the label the controller attributes to the bot's own
// playback. Default: "interviewer".
func WithSpeakerLabel(label string) Option {
	return func(t *Transport) {
		t.speakerLabel = label
	}
}

// New creates a headless bot transport. controlURL is the controller's
// WebSocket endpoint, meetingURL the room the bot should join.
func New(controlURL, meetingURL string, opts ...Option) (*Transport, error) {
	if controlURL == "" {
		return nil, fmt.Errorf("headless: controlURL must not be empty")
	}
	if meetingURL == "" {
		return nil, fmt.Errorf("headless: meetingURL must not be empty")
	}
	t := &Transport{
		controlURL:   controlURL,
		meetingURL:   meetingURL,
		botName:      "Interviewer",
		speakerLabel: "interviewer",
		events:       make(chan transport.Event, eventBuffer),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// ─── control protocol ─────────────────────────────────────────────────────────

type command struct {
	Cmd        string `json:"cmd"` // "join" | "play" | "say" | "leave"
	MeetingURL string `json:"meeting_url,omitempty"`
	BotName    string `json:"bot_name,omitempty"`
	Label      string `json:"label,omitempty"`
	Text       string `json:"text,omitempty"`
	PCM        []byte `json:"pcm,omitempty"` // base64 via encoding/json
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

type notification struct {
	Kind        string `json:"kind"` // "joined" | "left" | "speech" | "error"
	Participant string `json:"participant,omitempty"`
	Text        string `json:"text,omitempty"`
	IsFinal     bool   `json:"is_final,omitempty"`
	Speaker     string `json:"speaker,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ─── transport.Transport ──────────────────────────────────────────────────────

// Join implements transport.Transport. It connects to the controller and
// instructs the bot to enter the meeting.
func (t *Transport) Join(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, t.controlURL, nil)
	if err != nil {
		return fmt.Errorf("headless: dial controller: %w", err)
	}

	join := command{
		Cmd:        "join",
		MeetingURL: t.meetingURL,
		BotName:    t.botName,
		Label:      t.speakerLabel,
	}
	if err := writeCommand(ctx, conn, join); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return fmt.Errorf("headless: join meeting: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

// Leave implements transport.Transport. A "leave" command is sent best-effort
// before the control connection is closed.
func (t *Transport) Leave(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	close(t.events)
	t.mu.Unlock()

	if conn != nil {
		if err := writeCommand(ctx, conn, command{Cmd: "leave"}); err != nil {
			slog.Debug("headless: leave command failed", "err", err)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "interview finished")
	}
	return nil
}

// SendAudio implements transport.Transport.
func (t *Transport) SendAudio(ctx context.Context, clip *tts.Clip) error {
	if clip == nil || len(clip.PCM) == 0 {
		return nil
	}
	conn, err := t.requireConn()
	if err != nil {
		return err
	}
	play := command{
		Cmd:        "play",
		PCM:        clip.PCM,
		SampleRate: clip.SampleRate,
		Channels:   clip.Channels,
	}
	if err := writeCommand(ctx, conn, play); err != nil {
		return fmt.Errorf("headless: play audio: %w", err)
	}
	return nil
}

// SendText implements transport.Transport. Text is posted to the meeting chat
// by the bot.
func (t *Transport) SendText(ctx context.Context, text string) error {
	conn, err := t.requireConn()
	if err != nil {
		return err
	}
	if err := writeCommand(ctx, conn, command{Cmd: "say", Text: text}); err != nil {
		return fmt.Errorf("headless: say: %w", err)
	}
	return nil
}

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Mode implements transport.Transport.
func (t *Transport) Mode() transport.Mode {
	return transport.ModeHeadless
}

// ─── internals ────────────────────────────────────────────────────────────────

func (t *Transport) requireConn() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return nil, fmt.Errorf("headless: not joined")
	}
	return t.conn, nil
}

func writeCommand(ctx context.Context, conn *websocket.Conn, cmd command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// readLoop translates controller notifications into transport events.
func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			t.fail(fmt.Errorf("headless: control connection lost: %w", err))
			return
		}

		var n notification
		if err := json.Unmarshal(data, &n); err != nil {
			slog.Debug("headless: dropping malformed notification", "err", err)
			continue
		}

		switch n.Kind {
		case "joined":
			t.emit(transport.Event{Type: transport.EventJoined, Participant: n.Participant})
		case "left":
			t.emit(transport.Event{Type: transport.EventLeft, Participant: n.Participant})
		case "speech":
			t.emit(transport.Event{
				Type:         transport.EventSpeech,
				Text:         n.Text,
				IsFinal:      n.IsFinal,
				SpeakerLabel: n.Speaker,
			})
		case "error":
			t.fail(fmt.Errorf("headless: controller error: %s", n.Message))
			return
		default:
			slog.Debug("headless: ignoring unknown notification", "kind", n.Kind)
		}
	}
}

func (t *Transport) emit(ev transport.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		slog.Warn("headless: event channel full, dropping event", "type", ev.Type.String())
	}
}

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
