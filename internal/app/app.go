// Package app is the composition root: it turns a validated configuration
// into the wired service components.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/vivahq/viva/internal/attempt"
	"github.com/vivahq/viva/internal/config"
	"github.com/vivahq/viva/internal/handoff"
	"github.com/vivahq/viva/internal/observe"
	"github.com/vivahq/viva/internal/resilience"
	"github.com/vivahq/viva/internal/session"
	"github.com/vivahq/viva/internal/storage/postgres"
	"github.com/vivahq/viva/internal/voice"
	"github.com/vivahq/viva/pkg/provider/eval"
	"github.com/vivahq/viva/pkg/provider/eval/llmeval"
	"github.com/vivahq/viva/pkg/provider/room"
	"github.com/vivahq/viva/pkg/provider/tts"
	"github.com/vivahq/viva/pkg/provider/tts/openaitts"
)

// App bundles the wired long-lived components. The HTTP surface is attached
// by the caller (see internal/server and cmd/viva).
type App struct {
	Manager *Manager
	Reaper  *session.Reaper
	Metrics *observe.Metrics

	pg *postgres.Store
}

// New wires the service from configuration. The context bounds startup work
// (Postgres connect and migration).
func New(ctx context.Context, cfg config.Config) (*App, error) {
	metrics, err := observe.NewMetrics()
	if err != nil {
		return nil, err
	}

	var (
		registry attempt.Registry
		store    session.Store
		pg       *postgres.Store
	)
	if cfg.Storage.PostgresDSN != "" {
		pg, err = postgres.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		registry = pg.Attempts()
		store = pg.Sessions()
		slog.Info("using postgres storage")
	} else {
		registry = attempt.NewMemoryRegistry()
		store = session.NewMemoryStore()
		slog.Warn("no postgres DSN configured, state will not survive restarts")
	}

	ttsChain, err := buildTTSChain(cfg.Providers)
	if err != nil {
		if pg != nil {
			pg.Close()
		}
		return nil, err
	}

	evaluator, err := buildEvaluator(cfg.Providers.Evaluator)
	if err != nil {
		if pg != nil {
			pg.Close()
		}
		return nil, err
	}

	locks := session.NewLockTable()
	hand := handoff.New(evaluator, store, registry, handoff.WithMetrics(metrics))
	manager := NewManager(cfg, registry, store, locks, buildRooms(cfg), ttsChain, hand, metrics)

	reaper := session.NewReaper(store, locks, registry,
		cfg.Interview.MaxSessionAge, cfg.Interview.ReapInterval)
	reaper.OnAbandon = func(*session.Session) {
		metrics.InterviewFinished(context.Background(), "abandoned")
	}

	return &App{
		Manager: manager,
		Reaper:  reaper,
		Metrics: metrics,
		pg:      pg,
	}, nil
}

// Healthy reports readiness; with Postgres configured it pings the pool.
func (a *App) Healthy(ctx context.Context) error {
	if a.pg != nil {
		return a.pg.Ping(ctx)
	}
	return nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
}

// buildTTSChain creates the synthesis fallback chain from configuration.
func buildTTSChain(p config.ProvidersConfig) (*resilience.Chain[tts.Provider], error) {
	primary, err := buildTTS(p.TTS)
	if err != nil {
		return nil, fmt.Errorf("app: primary tts: %w", err)
	}
	fallbacks := make([]tts.Provider, 0, len(p.TTSFallbacks))
	for i, entry := range p.TTSFallbacks {
		fb, err := buildTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("app: tts fallback %d: %w", i, err)
		}
		fallbacks = append(fallbacks, fb)
	}
	return voice.NewChain(primary, fallbacks...), nil
}

func buildTTS(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Provider {
	case "openai":
		opts := []openaitts.Option{openaitts.WithTimeout(30 * time.Second)}
		if entry.BaseURL != "" {
			opts = append(opts, openaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, openaitts.WithModel(entry.Model))
		}
		return openaitts.New(entry.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unsupported tts provider %q", entry.Provider)
	}
}

// buildEvaluator creates the post-interview scoring provider.
func buildEvaluator(entry config.ProviderEntry) (eval.Provider, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	provider, err := llmeval.New(entry.Provider, entry.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: evaluator: %w", err)
	}
	return provider, nil
}

// buildRooms picks the room provisioner. Without a vendor configured the
// simulated provisioner keeps the embedded flow working end to end.
func buildRooms(cfg config.Config) room.Provisioner {
	if cb := cfg.Transports.CloudBot; cb.APIKey != "" && cb.BaseURL != "" {
		if p, err := room.NewHTTP(cb.BaseURL, cb.APIKey); err == nil {
			return p
		}
	}
	return room.Simulated{}
}
