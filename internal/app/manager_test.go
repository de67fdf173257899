package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vivahq/viva/internal/attempt"
	"github.com/vivahq/viva/internal/config"
	"github.com/vivahq/viva/internal/session"
	"github.com/vivahq/viva/internal/voice"
	"github.com/vivahq/viva/pkg/provider/room"
	ttsmock "github.com/vivahq/viva/pkg/provider/tts/mock"
	"github.com/vivahq/viva/pkg/transport"
)

// completionStub satisfies engine.CompletionHandler.
type completionStub struct{}

func (completionStub) Complete(context.Context, *session.Session) error { return nil }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Providers.TTS = config.ProviderEntry{Provider: "openai", APIKey: "sk-test"}
	cfg.Providers.Evaluator = config.ProviderEntry{Provider: "openai", Model: "gpt-4o", APIKey: "sk-test"}
	cfg.Transports.Embedded.RoomServerURL = "ws://rooms.invalid/ws"
	cfg.Interview.JoinTimeout = 100 * time.Millisecond
	cfg.Roles = []config.RoleConfig{{
		Name:      "backend-engineer",
		Technical: []string{"Explain indexing."},
	}}
	return cfg
}

func newTestManager(cfg config.Config) (*Manager, attempt.Registry, session.Store) {
	registry := attempt.NewMemoryRegistry()
	store := session.NewMemoryStore()
	return NewManager(
		cfg, registry, store,
		session.NewLockTable(),
		room.Simulated{},
		voice.NewChain(&ttsmock.Provider{}),
		completionStub{},
		nil,
	), registry, store
}

func TestStartRegistersAttemptAndSession(t *testing.T) {
	t.Parallel()

	m, registry, store := newTestManager(testConfig())
	ctx := context.Background()

	sess, err := m.Start(ctx, StartRequest{
		CandidateName:  "Ada",
		CandidateEmail: "ada@example.com",
		Role:           "backend-engineer",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Mode != transport.ModeEmbedded {
		t.Errorf("mode = %s, want embedded-room", sess.Mode)
	}
	if sess.JoinURL == "" {
		t.Error("join URL missing")
	}

	rec, err := registry.Get(ctx, "ada@example.com", "backend-engineer")
	if err != nil {
		t.Fatalf("attempt not registered: %v", err)
	}
	if rec.SessionID != sess.ID {
		t.Errorf("attempt bound to %q, want %q", rec.SessionID, sess.ID)
	}

	if _, err := store.Get(ctx, sess.ID); err != nil {
		t.Errorf("session not persisted: %v", err)
	}
}

func TestStartRejectsSecondAttempt(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(testConfig())
	ctx := context.Background()
	req := StartRequest{CandidateName: "Ada", CandidateEmail: "ada@example.com", Role: "backend-engineer"}

	if _, err := m.Start(ctx, req); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := m.Start(ctx, req); !errors.Is(err, attempt.ErrAlreadyAttempted) {
		t.Fatalf("second Start = %v, want ErrAlreadyAttempted", err)
	}
}

func TestStartUnknownRole(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(testConfig())
	_, err := m.Start(context.Background(), StartRequest{
		CandidateName:  "Ada",
		CandidateEmail: "ada@example.com",
		Role:           "astronaut",
	})
	if !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("Start = %v, want ErrUnknownRole", err)
	}
}

func TestStartConfigurationErrorDoesNotBurnAttempt(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Transports.Embedded.RoomServerURL = ""
	m, registry, _ := newTestManager(cfg)
	ctx := context.Background()

	_, err := m.Start(ctx, StartRequest{
		CandidateName:  "Ada",
		CandidateEmail: "ada@example.com",
		Role:           "backend-engineer",
	})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Start = %v, want ConfigurationError", err)
	}

	// The gate must still be open; the candidate never got an interview.
	ok, _ := registry.CanStart(ctx, "ada@example.com", "backend-engineer")
	if !ok {
		t.Error("attempt consumed by a configuration failure")
	}
}

func TestEndNowUnknownSession(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(testConfig())
	if err := m.EndNow("nope"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("EndNow = %v, want ErrNotActive", err)
	}
}
