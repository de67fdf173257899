// Package cloudbot implements transport.Transport against a cloud-hosted
// recording-bot vendor.
//
// The vendor runs the bot: we POST a bot into the meeting via REST, then
// consume its live transcript over a WebSocket stream. Prompt audio is
// delivered by handing the vendor the raw PCM to play through the bot
// (output_audio endpoint); text goes out through the meeting chat endpoint.
package cloudbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vivahq/viva/pkg/provider/tts"
	"github.com/vivahq/viva/pkg/transport"
)

const eventBuffer = 64

// Transport drives one cloud bot. Create one per session with [New].
type Transport struct {
	baseURL      string
	apiKey       string
	meetingURL   string
	botName      string
	speakerLabel string
	client       *http.Client

	mu     sync.Mutex
	botID  string
	ws     *websocket.Conn
	events chan transport.Event
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// Option is a functional option for [Transport].
type Option func(*Transport)

// WithBotName sets the display name the bot joins the meeting with.
// Default: "Interviewer".
func WithBotName(name string) Option {
	return func(t *Transport) {
		t.botName = name
	}
}

// WithSpeakerLabel sets the diarization label attributed to the bot's own
// playback, so the engine can discard it. Default: "interviewer".
func WithSpeakerLabel(label string) Option {
	return func(t *Transport) {
		t.speakerLabel = label
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

// New creates a cloud bot transport that will join meetingURL.
func New(baseURL, apiKey, meetingURL string, opts ...Option) (*Transport, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("cloudbot: baseURL and apiKey must not be empty")
	}
	if meetingURL == "" {
		return nil, fmt.Errorf("cloudbot: meetingURL must not be empty")
	}
	t := &Transport{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		meetingURL:   meetingURL,
		botName:      "Interviewer",
		speakerLabel: "interviewer",
		client:       &http.Client{Timeout: 30 * time.Second},
		events:       make(chan transport.Event, eventBuffer),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// ─── vendor wire types ────────────────────────────────────────────────────────

type createBotRequest struct {
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name"`
	Transcription struct {
		Provider string `json:"provider"`
	} `json:"transcription_options"`
}

type createBotResponse struct {
	ID           string `json:"id"`
	TranscriptWS string `json:"transcript_ws_url"`
}

type transcriptMessage struct {
	Event string `json:"event"` // "transcript" | "participant_join" | "participant_leave" | "bot_error"
	Data  struct {
		Speaker string `json:"speaker"`
		Words   string `json:"words"`
		IsFinal bool   `json:"is_final"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

// ─── transport.Transport ──────────────────────────────────────────────────────

// Join implements transport.Transport. It creates the bot via REST and opens
// the transcript stream.
func (t *Transport) Join(ctx context.Context) error {
	reqBody := createBotRequest{MeetingURL: t.meetingURL, BotName: t.botName}
	reqBody.Transcription.Provider = "default"

	var created createBotResponse
	if err := t.doJSON(ctx, http.MethodPost, "/bots", reqBody, &created); err != nil {
		return fmt.Errorf("cloudbot: create bot: %w", err)
	}
	if created.ID == "" || created.TranscriptWS == "" {
		return fmt.Errorf("cloudbot: create bot: incomplete response")
	}

	ws, _, err := websocket.Dial(ctx, created.TranscriptWS, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + t.apiKey}},
	})
	if err != nil {
		t.removeBot(created.ID)
		return fmt.Errorf("cloudbot: open transcript stream: %w", err)
	}

	t.mu.Lock()
	t.botID = created.ID
	t.ws = ws
	t.mu.Unlock()

	go t.readLoop(ws)
	return nil
}

// Leave implements transport.Transport. The bot is removed from the meeting
// via REST and the transcript stream is closed.
func (t *Transport) Leave(_ context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	botID, ws := t.botID, t.ws
	t.ws = nil
	close(t.events)
	t.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "interview finished")
	}
	if botID != "" {
		t.removeBot(botID)
	}
	return nil
}

// SendAudio implements transport.Transport. The clip's PCM is uploaded for
// the bot to play into the meeting.
func (t *Transport) SendAudio(ctx context.Context, clip *tts.Clip) error {
	if clip == nil || len(clip.PCM) == 0 {
		return nil
	}
	botID, err := t.requireBot()
	if err != nil {
		return err
	}

	payload := struct {
		B64        []byte `json:"pcm_base64"` // encoding/json base64-encodes []byte
		SampleRate int    `json:"sample_rate"`
		Channels   int    `json:"channels"`
	}{clip.PCM, clip.SampleRate, clip.Channels}

	if err := t.doJSON(ctx, http.MethodPost, "/bots/"+botID+"/output_audio", payload, nil); err != nil {
		return fmt.Errorf("cloudbot: send audio: %w", err)
	}
	return nil
}

// SendText implements transport.Transport. Text goes to the meeting chat.
func (t *Transport) SendText(ctx context.Context, text string) error {
	botID, err := t.requireBot()
	if err != nil {
		return err
	}
	payload := struct {
		Message string `json:"message"`
	}{text}
	if err := t.doJSON(ctx, http.MethodPost, "/bots/"+botID+"/send_chat_message", payload, nil); err != nil {
		return fmt.Errorf("cloudbot: send chat message: %w", err)
	}
	return nil
}

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Mode implements transport.Transport.
func (t *Transport) Mode() transport.Mode {
	return transport.ModeCloud
}

// ─── internals ────────────────────────────────────────────────────────────────

func (t *Transport) requireBot() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.botID == "" || t.closed {
		return "", fmt.Errorf("cloudbot: not joined")
	}
	return t.botID, nil
}

// doJSON performs an authenticated JSON request against the vendor API.
// When out is non-nil the response body is decoded into it.
func (t *Transport) doJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// removeBot is best-effort cleanup; failures are logged, not returned.
func (t *Transport) removeBot(botID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.doJSON(ctx, http.MethodDelete, "/bots/"+botID, struct{}{}, nil); err != nil {
		slog.Warn("cloudbot: remove bot failed", "bot_id", botID, "err", err)
	}
}

// readLoop translates transcript stream messages into transport events.
func (t *Transport) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(context.Background())
		if err != nil {
			t.fail(fmt.Errorf("cloudbot: transcript stream lost: %w", err))
			return
		}

		var msg transcriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("cloudbot: dropping malformed transcript message", "err", err)
			continue
		}

		switch msg.Event {
		case "transcript":
			t.emit(transport.Event{
				Type:         transport.EventSpeech,
				Text:         msg.Data.Words,
				IsFinal:      msg.Data.IsFinal,
				SpeakerLabel: msg.Data.Speaker,
			})
		case "participant_join":
			t.emit(transport.Event{Type: transport.EventJoined, Participant: msg.Data.Name})
		case "participant_leave":
			t.emit(transport.Event{Type: transport.EventLeft, Participant: msg.Data.Name})
		case "bot_error":
			t.fail(fmt.Errorf("cloudbot: bot error: %s", msg.Data.Message))
			return
		default:
			slog.Debug("cloudbot: ignoring unknown transcript event", "event", msg.Event)
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
		slog.Warn("cloudbot: event channel full, dropping event", "type", ev.Type.String())
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
	if t.ws != nil {
		_ = t.ws.Close(websocket.StatusInternalError, "transport error")
		t.ws = nil
	}
	close(t.events)
}
