package handoff

import (
	"context"
	"errors"
	"testing"

	"github.com/vivahq/viva/internal/attempt"
	"github.com/vivahq/viva/internal/session"
	"github.com/vivahq/viva/pkg/provider/eval"
	evalmock "github.com/vivahq/viva/pkg/provider/eval/mock"
	"github.com/vivahq/viva/pkg/transport"
)

func finishedSession(t *testing.T, reg attempt.Registry) *session.Session {
	t.Helper()
	s := session.New(
		session.Candidate{Name: "Ada Lovelace", Email: "ada@example.com"},
		"backend-engineer",
		transport.ModeEmbedded,
		"https://rooms.invalid/x",
	)
	s.Responses = []session.Response{
		{PromptText: "Explain indexing.", PromptType: "technical", AnswerText: "B-trees keep lookups logarithmic."},
		{PromptText: "Tell me about a conflict.", PromptType: "behavioral", AnswerText: session.NoResponseSentinel},
	}
	if err := reg.RegisterStart(context.Background(), s.Candidate.Email, s.Role, s.ID); err != nil {
		t.Fatalf("RegisterStart: %v", err)
	}
	return s
}

func TestCompleteStoresVerdictAndClosesAttempt(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	reg := attempt.NewMemoryRegistry()
	evaluator := &evalmock.Provider{}
	s := finishedSession(t, reg)

	h := New(evaluator, store, reg)
	if err := h.Complete(context.Background(), s); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if s.Evaluation == nil || s.Evaluation.Degraded {
		t.Fatalf("evaluation = %+v, want non-degraded", s.Evaluation)
	}
	if s.Evaluation.Score != 7.5 {
		t.Errorf("score = %v, want 7.5", s.Evaluation.Score)
	}

	saved, err := store.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Get saved session: %v", err)
	}
	if saved.Evaluation == nil || saved.Evaluation.Summary != "solid answers across the board" {
		t.Errorf("saved evaluation = %+v", saved.Evaluation)
	}

	rec, err := reg.Get(context.Background(), "ada@example.com", "backend-engineer")
	if err != nil {
		t.Fatalf("Get attempt: %v", err)
	}
	if rec.Status != attempt.StatusCompleted || rec.Score != 7.5 {
		t.Errorf("attempt = %+v, want completed/7.5", rec)
	}

	// The evaluator saw the full transcript.
	reqs := evaluator.Requests()
	if len(reqs) != 1 || len(reqs[0].Responses) != 2 {
		t.Fatalf("evaluator requests = %+v", reqs)
	}
	if reqs[0].Responses[1].Answer != session.NoResponseSentinel {
		t.Errorf("sentinel answer not forwarded: %q", reqs[0].Responses[1].Answer)
	}
}

func TestCompleteDegradesOnEvaluatorFailure(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	reg := attempt.NewMemoryRegistry()
	evaluator := &evalmock.Provider{
		EvaluateFunc: func(context.Context, eval.Request) (*eval.Result, error) {
			return nil, errors.New("model overloaded")
		},
	}
	s := finishedSession(t, reg)

	h := New(evaluator, store, reg)
	if err := h.Complete(context.Background(), s); err != nil {
		t.Fatalf("Complete should not fail on evaluator error: %v", err)
	}

	if s.Evaluation == nil || !s.Evaluation.Degraded {
		t.Fatalf("evaluation = %+v, want degraded", s.Evaluation)
	}
	if s.Evaluation.Summary != DegradedSummary {
		t.Errorf("summary = %q, want degraded sentinel", s.Evaluation.Summary)
	}

	// Attempt still closes; the interview happened.
	rec, _ := reg.Get(context.Background(), "ada@example.com", "backend-engineer")
	if rec.Status != attempt.StatusCompleted {
		t.Errorf("attempt status = %s, want completed", rec.Status)
	}
	if rec.Summary != DegradedSummary {
		t.Errorf("attempt summary = %q", rec.Summary)
	}
}

func TestCompleteFailsWhenAttemptMissing(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	reg := attempt.NewMemoryRegistry()
	s := session.New(session.Candidate{Email: "ghost@example.com"}, "sre", transport.ModeEmbedded, "")

	h := New(&evalmock.Provider{}, store, reg)
	if err := h.Complete(context.Background(), s); !errors.Is(err, attempt.ErrNotFound) {
		t.Fatalf("Complete = %v, want ErrNotFound", err)
	}
}
