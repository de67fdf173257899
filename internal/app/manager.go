package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vivahq/viva/internal/attempt"
	"github.com/vivahq/viva/internal/config"
	"github.com/vivahq/viva/internal/engine"
	"github.com/vivahq/viva/internal/observe"
	"github.com/vivahq/viva/internal/resilience"
	"github.com/vivahq/viva/internal/script"
	"github.com/vivahq/viva/internal/session"
	"github.com/vivahq/viva/internal/voice"
	"github.com/vivahq/viva/pkg/provider/room"
	"github.com/vivahq/viva/pkg/provider/tts"
	"github.com/vivahq/viva/pkg/transport"
	"github.com/vivahq/viva/pkg/transport/cloudbot"
	"github.com/vivahq/viva/pkg/transport/embedded"
	"github.com/vivahq/viva/pkg/transport/headless"
)

// ErrUnknownRole is returned when a start request names a role that is not
// configured.
var ErrUnknownRole = errors.New("app: unknown role")

// ErrNotActive is returned when an operator command targets a session no
// engine is currently driving.
var ErrNotActive = errors.New("app: session not active")

// ConfigurationError reports that the selected transport mode cannot run
// with the present configuration. Start requests failing this way are the
// caller's problem (HTTP 400), not a server fault.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "app: configuration error: " + e.Reason
}

// StartRequest is the input to [Manager.Start].
type StartRequest struct {
	CandidateName  string
	CandidateEmail string
	Role           string
}

// Manager owns the live interviews: it admits start requests through the
// one-attempt gate, assembles a per-session engine, and tracks running
// engines for operator commands.
//
// All methods are safe for concurrent use.
type Manager struct {
	cfg      config.Config
	registry attempt.Registry
	store    session.Store
	locks    *session.LockTable
	rooms    room.Provisioner
	ttsChain *resilience.Chain[tts.Provider]
	voiceFor tts.VoiceParams
	handoff  engine.CompletionHandler
	metrics  *observe.Metrics

	mu     sync.Mutex
	active map[string]*engine.Engine
}

// NewManager wires a manager.
func NewManager(
	cfg config.Config,
	registry attempt.Registry,
	store session.Store,
	locks *session.LockTable,
	rooms room.Provisioner,
	ttsChain *resilience.Chain[tts.Provider],
	handoff engine.CompletionHandler,
	metrics *observe.Metrics,
) *Manager {
	return &Manager{
		cfg:      cfg,
		registry: registry,
		store:    store,
		locks:    locks,
		rooms:    rooms,
		ttsChain: ttsChain,
		voiceFor: tts.VoiceParams{Voice: cfg.Providers.TTS.Voice},
		handoff:  handoff,
		metrics:  metrics,
		active:   make(map[string]*engine.Engine),
	}
}

// Start admits a new interview. On success the returned session is in the
// created state and an engine goroutine is already driving it.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*session.Session, error) {
	roleCfg, ok := m.cfg.Role(req.Role)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, req.Role)
	}

	// Advisory check first so we can reject before provisioning a room.
	ok, err := m.registry.CanStart(ctx, req.CandidateEmail, req.Role)
	if err != nil {
		return nil, fmt.Errorf("app: check attempt: %w", err)
	}
	if !ok {
		m.metrics.StartRejected(ctx, req.Role)
		return nil, attempt.ErrAlreadyAttempted
	}

	mode := transport.SelectMode(
		m.cfg.Transports.BotCredentialsConfigured(),
		m.cfg.Transports.CloudTranscriptionConfigured(),
	)

	rm, err := m.rooms.CreateRoom(ctx, req.CandidateName, req.Role)
	if err != nil {
		return nil, fmt.Errorf("app: provision room: %w", err)
	}

	tr, err := m.buildTransport(mode, rm.JoinURL)
	if err != nil {
		return nil, err
	}

	scr, err := script.Build(req.CandidateName, script.Role{
		Name:                 roleCfg.Name,
		Technical:            roleCfg.Technical,
		Behavioral:           roleCfg.Behavioral,
		TechnicalWaitBudget:  m.cfg.Interview.TechnicalWaitBudget,
		BehavioralWaitBudget: m.cfg.Interview.BehavioralWaitBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build script: %w", err)
	}

	sess := session.New(
		session.Candidate{Name: req.CandidateName, Email: req.CandidateEmail},
		req.Role, mode, rm.JoinURL,
	)

	// Authoritative claim of the candidate's single attempt.
	if err := m.registry.RegisterStart(ctx, req.CandidateEmail, req.Role, sess.ID); err != nil {
		if errors.Is(err, attempt.ErrAlreadyAttempted) {
			m.metrics.StartRejected(ctx, req.Role)
		}
		return nil, err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("app: save session: %w", err)
	}

	eng := engine.New(engine.Config{
		QuietPeriod:        m.cfg.Interview.QuietPeriod,
		JoinTimeout:        m.cfg.Interview.JoinTimeout,
		InterQuestionPause: m.cfg.Interview.InterQuestionPause,
		SpeakerLabel:       m.cfg.Interview.SpeakerLabel,
	}, engine.Deps{
		Transport: tr,
		Script:    scr,
		Voice:     voice.New(m.ttsChain, voice.WithVoice(m.voiceFor)),
		Store:     m.store,
		Locks:     m.locks,
		Judge: engine.HeuristicJudge{
			MinWords:      m.cfg.Interview.FollowUp.MinWords,
			EchoThreshold: m.cfg.Interview.FollowUp.EchoThreshold,
		},
		Handoff: m.handoff,
		Metrics: m.metrics,
	}, sess)

	m.mu.Lock()
	m.active[sess.ID] = eng
	m.mu.Unlock()

	m.metrics.InterviewStarted(ctx, string(mode))
	slog.Info("interview started",
		"session_id", sess.ID,
		"role", req.Role,
		"mode", mode,
		"join_url", rm.JoinURL)

	go m.drive(sess, eng)

	return sess.Clone(), nil
}

// drive runs the engine to completion on its own goroutine. The engine owns
// all terminal bookkeeping; the manager only tracks liveness.
func (m *Manager) drive(sess *session.Session, eng *engine.Engine) {
	defer func() {
		m.mu.Lock()
		delete(m.active, sess.ID)
		m.mu.Unlock()
	}()

	ctx := context.Background()
	if err := m.registry.MarkInProgress(ctx, sess.Candidate.Email, sess.Role); err != nil {
		slog.Warn("mark attempt in progress failed", "session_id", sess.ID, "err", err)
	}
	if err := eng.Run(ctx); err != nil {
		slog.Error("interview ended with error", "session_id", sess.ID, "err", err)
	}
}

// EndNow finishes a running interview early, keeping everything captured.
func (m *Manager) EndNow(id string) error {
	m.mu.Lock()
	eng, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotActive
	}
	eng.EndNow()
	return nil
}

// Get returns the session by ID.
func (m *Manager) Get(ctx context.Context, id string) (*session.Session, error) {
	return m.store.Get(ctx, id)
}

// ActiveCount reports how many engines are running.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// buildTransport assembles the transport for the selected mode, validating
// that the mode's configuration section is usable.
func (m *Manager) buildTransport(mode transport.Mode, joinURL string) (transport.Transport, error) {
	label := m.cfg.Interview.SpeakerLabel
	switch mode {
	case transport.ModeEmbedded:
		url := m.cfg.Transports.Embedded.RoomServerURL
		if url == "" {
			return nil, &ConfigurationError{Reason: "embedded room server URL not configured"}
		}
		return embedded.New(url, embedded.WithSpeakerLabel(label))
	case transport.ModeCloud:
		cb := m.cfg.Transports.CloudBot
		if cb.APIKey == "" || cb.BaseURL == "" {
			return nil, &ConfigurationError{Reason: "cloud bot credentials not configured"}
		}
		return cloudbot.New(cb.BaseURL, cb.APIKey, joinURL, cloudbot.WithSpeakerLabel(label))
	case transport.ModeHeadless:
		hl := m.cfg.Transports.Headless
		if hl.ControlURL == "" {
			return nil, &ConfigurationError{Reason: "headless bot controller not configured"}
		}
		return headless.New(hl.ControlURL, joinURL, headless.WithSpeakerLabel(label))
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unsupported transport mode %q", mode)}
	}
}
