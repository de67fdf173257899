// Package server exposes the operator-facing HTTP API.
//
// Routes:
//
//	POST /v1/interviews          start an interview
//	GET  /v1/interviews/{id}     inspect a session
//	POST /v1/interviews/{id}/end finish a running interview early
//	GET  /healthz                readiness
//	GET  /metrics                Prometheus scrape endpoint
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vivahq/viva/internal/app"
	"github.com/vivahq/viva/internal/attempt"
	"github.com/vivahq/viva/internal/observe"
	"github.com/vivahq/viva/internal/session"
)

// Service is what the handlers need from the interview manager.
type Service interface {
	Start(ctx context.Context, req app.StartRequest) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	EndNow(id string) error
}

// handler carries the dependencies shared by all routes.
type handler struct {
	svc     Service
	healthy func(ctx context.Context) error
	metrics *observe.Metrics
}

// New builds the HTTP handler. healthy is consulted by /healthz; pass nil
// for always-ready.
func New(svc Service, healthy func(ctx context.Context) error, metrics *observe.Metrics) http.Handler {
	h := &handler{svc: svc, healthy: healthy, metrics: metrics}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/interviews", h.startInterview)
	mux.HandleFunc("GET /v1/interviews/{id}", h.getInterview)
	mux.HandleFunc("POST /v1/interviews/{id}/end", h.endInterview)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return h.instrument(mux)
}

// instrument wraps the mux with request logging and latency recording.
func (h *handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		// The matched pattern, not the raw path: a per-session path would
		// mint a fresh timeseries for every interview.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		h.metrics.HTTPObserved(r.Context(), route, sw.status, time.Since(start))
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"took", time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ─── routes ───────────────────────────────────────────────────────────────────

type startRequest struct {
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`
	Role           string `json:"role"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	JoinURL   string `json:"join_url"`
	Mode      string `json:"mode"`
	State     string `json:"state"`
}

func (h *handler) startInterview(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CandidateName == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "candidate_name and role are required")
		return
	}
	if _, err := mail.ParseAddress(req.CandidateEmail); err != nil {
		writeError(w, http.StatusBadRequest, "candidate_email is not a valid address")
		return
	}

	sess, err := h.svc.Start(r.Context(), app.StartRequest{
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		Role:           req.Role,
	})
	if err != nil {
		var cfgErr *app.ConfigurationError
		switch {
		case errors.Is(err, attempt.ErrAlreadyAttempted):
			writeError(w, http.StatusConflict, "candidate already attempted this role")
		case errors.Is(err, app.ErrUnknownRole):
			writeError(w, http.StatusBadRequest, "unknown role")
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusBadRequest, cfgErr.Reason)
		default:
			slog.Error("start interview failed", "err", err)
			writeError(w, http.StatusInternalServerError, "could not start interview")
		}
		return
	}

	writeJSON(w, http.StatusCreated, startResponse{
		SessionID: sess.ID,
		JoinURL:   sess.JoinURL,
		Mode:      string(sess.Mode),
		State:     string(sess.State),
	})
}

func (h *handler) getInterview(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("get interview failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handler) endInterview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.EndNow(id); err != nil {
		if errors.Is(err, app.ErrNotActive) {
			writeError(w, http.StatusConflict, "session is not running")
			return
		}
		slog.Error("end interview failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not end interview")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id, "status": "ending"})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.healthy != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.healthy(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
