// Package handoff finalises a finished interview: it runs the automated
// evaluation, persists the final session and closes the attempt record.
//
// The handoff runs exactly once per session. Evaluation failure degrades to
// a manual-review sentinel rather than failing the interview; by the time we
// get here the candidate's answers exist and must not be lost.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vivahq/viva/internal/attempt"
	"github.com/vivahq/viva/internal/observe"
	"github.com/vivahq/viva/internal/session"
	"github.com/vivahq/viva/pkg/provider/eval"
)

// DegradedSummary is stored when automated evaluation is unavailable.
const DegradedSummary = "automated analysis unavailable, manual review recommended"

// defaultEvalTimeout bounds the evaluation call so a hung LLM cannot keep a
// session in completing forever.
const defaultEvalTimeout = 90 * time.Second

// Handler runs the completion handoff.
type Handler struct {
	evaluator eval.Provider
	store     session.Store
	registry  attempt.Registry
	metrics   *observe.Metrics
	timeout   time.Duration
}

// Option is a functional option for [Handler].
type Option func(*Handler)

// WithEvalTimeout overrides the evaluation timeout.
func WithEvalTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithMetrics attaches metrics recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// New creates a handler.
func New(evaluator eval.Provider, store session.Store, registry attempt.Registry, opts ...Option) *Handler {
	h := &Handler{
		evaluator: evaluator,
		store:     store,
		registry:  registry,
		timeout:   defaultEvalTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Complete evaluates the transcript, attaches the outcome to the session,
// saves it and marks the attempt completed. The final save and the attempt
// completion are the one place store errors are NOT swallowed: losing the
// finished interview is worse than retrying the handoff.
func (h *Handler) Complete(ctx context.Context, s *session.Session) error {
	evaluation := h.evaluate(ctx, s)

	s.Evaluation = &evaluation
	s.Touch()
	if err := h.store.Save(ctx, s.Clone()); err != nil {
		return fmt.Errorf("handoff: save final session: %w", err)
	}

	err := h.registry.MarkCompleted(ctx, s.Candidate.Email, s.Role, evaluation.Score, evaluation.Summary)
	if err != nil {
		return fmt.Errorf("handoff: close attempt: %w", err)
	}
	return nil
}

// evaluate runs the scoring call, degrading on any failure.
func (h *Handler) evaluate(parent context.Context, s *session.Session) session.Evaluation {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	req := eval.Request{
		SessionID:     s.ID,
		CandidateName: s.Candidate.Name,
		Role:          s.Role,
		Responses:     make([]eval.ResponseSummary, 0, len(s.Responses)),
	}
	for _, r := range s.Responses {
		req.Responses = append(req.Responses, eval.ResponseSummary{
			Question:     r.PromptText,
			QuestionType: r.PromptType,
			Answer:       r.AnswerText,
			FollowUp:     r.FollowUpAnswer,
		})
	}

	start := time.Now()
	result, err := h.evaluator.Evaluate(ctx, req)
	if err != nil {
		slog.Warn("evaluation failed, storing degraded outcome",
			"session_id", s.ID, "err", err)
		h.metrics.EvaluationObserved(parent, time.Since(start), true)
		h.metrics.ProviderError(parent, "evaluator", "evaluation")
		return session.Evaluation{Summary: DegradedSummary, Degraded: true}
	}
	h.metrics.EvaluationObserved(parent, time.Since(start), false)

	return session.Evaluation{
		Score:     result.Score,
		Summary:   result.Summary,
		Strengths: result.Strengths,
		Concerns:  result.Concerns,
	}
}
