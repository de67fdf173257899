// Command viva runs the unattended interview service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vivahq/viva/internal/app"
	"github.com/vivahq/viva/internal/config"
	"github.com/vivahq/viva/internal/observe"
	"github.com/vivahq/viva/internal/server"
	"github.com/vivahq/viva/pkg/transport"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "viva: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "viva: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("viva starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider("viva", version)
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownMetrics(); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Application wiring ────────────────────────────────────────────────────
	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	application, err := app.New(startupCtx, cfg)
	cancel()
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer application.Close()

	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.New(application.Manager, application.Healthy, application.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := application.Reaper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("reaper: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg config.Config) {
	mode := transport.SelectMode(
		cfg.Transports.BotCredentialsConfigured(),
		cfg.Transports.CloudTranscriptionConfigured(),
	)
	storage := "in-memory"
	if cfg.Storage.PostgresDSN != "" {
		storage = "postgres"
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           Viva — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Print(summaryRow("TTS", cfg.Providers.TTS.Provider+" / "+cfg.Providers.TTS.Model))
	fmt.Print(summaryRow("TTS fallbacks", fmt.Sprintf("%d", len(cfg.Providers.TTSFallbacks))))
	fmt.Print(summaryRow("Evaluator", cfg.Providers.Evaluator.Provider+" / "+cfg.Providers.Evaluator.Model))
	fmt.Print(summaryRow("Transport", string(mode)))
	fmt.Print(summaryRow("Storage", storage))
	fmt.Print(summaryRow("Roles", fmt.Sprintf("%d", len(cfg.Roles))))
	fmt.Print(summaryRow("Listen addr", cfg.Server.ListenAddr))
	fmt.Println("╚═══════════════════════════════════════╝")
}

// summaryRow truncates by rune, so a multibyte model name cannot be split
// mid-character.
func summaryRow(key, value string) string {
	if runes := []rune(value); len(runes) > 19 {
		value = string(runes[:16]) + "…"
	}
	return fmt.Sprintf("║  %-15s : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
