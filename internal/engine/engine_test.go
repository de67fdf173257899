package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vivahq/viva/internal/script"
	"github.com/vivahq/viva/internal/session"
	"github.com/vivahq/viva/internal/voice"
	ttsmock "github.com/vivahq/viva/pkg/provider/tts/mock"
	"github.com/vivahq/viva/pkg/transport"
	trmock "github.com/vivahq/viva/pkg/transport/mock"
)

// handoffStub records Complete calls.
type handoffStub struct {
	mu            sync.Mutex
	calls         int
	err           error
	lastRespCount int
}

func (h *handoffStub) Complete(_ context.Context, s *session.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.lastRespCount = len(s.Responses)
	return h.err
}

func (h *handoffStub) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type fixture struct {
	engine *Engine
	tr     *trmock.Transport
	store  *session.MemoryStore
	sess   *session.Session
	hand   *handoffStub
}

func newFixture(t *testing.T, cfg Config, role script.Role, judge FollowUpJudge) *fixture {
	t.Helper()

	scr, err := script.Build("Ada", role)
	if err != nil {
		t.Fatalf("Build script: %v", err)
	}

	tr := trmock.New()
	store := session.NewMemoryStore()
	sess := session.New(session.Candidate{Name: "Ada", Email: "ada@example.com"},
		role.Name, transport.ModeEmbedded, "https://rooms.invalid/x")
	hand := &handoffStub{}

	deps := Deps{
		Transport: tr,
		Script:    scr,
		Voice:     voice.New(voice.NewChain(&ttsmock.Provider{})),
		Store:     store,
		Locks:     session.NewLockTable(),
		Judge:     judge,
		Handoff:   hand,
	}
	return &fixture{
		engine: New(cfg, deps, sess),
		tr:     tr,
		store:  store,
		sess:   sess,
		hand:   hand,
	}
}

func fastConfig() Config {
	return Config{
		QuietPeriod:  50 * time.Millisecond,
		JoinTimeout:  2 * time.Second,
		SpeakerLabel: "interviewer",
	}
}

func fastRole() script.Role {
	return script.Role{
		Name:                 "backend-engineer",
		Technical:            []string{"Explain indexing.", "Explain sharding."},
		Behavioral:           []string{"Describe a conflict."},
		TechnicalWaitBudget:  5 * time.Second,
		BehavioralWaitBudget: 5 * time.Second,
	}
}

// noProbe never asks a follow-up.
type noProbe struct{}

func (noProbe) Probe(script.Prompt, string) string { return "" }

func TestFullInterviewFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig(), fastRole(), noProbe{})

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()

	f.tr.EmitJoined("Ada")
	answers := []string{
		"I am Ada, a backend engineer with eight years of storage experience.",
		"B-trees keep point lookups logarithmic even at scale.",
		"Shard by tenant and rebalance with consistent hashing.",
		"I mediated between two teams over an API contract.",
	}
	for _, a := range answers {
		time.Sleep(100 * time.Millisecond)
		f.tr.EmitSpeech(a, "candidate")
		time.Sleep(200 * time.Millisecond)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("interview did not finish")
	}

	if f.sess.State != session.StateCompleted {
		t.Fatalf("state = %s, want completed", f.sess.State)
	}
	if len(f.sess.Responses) != 4 {
		t.Fatalf("responses = %d, want 4", len(f.sess.Responses))
	}
	for i, want := range answers {
		if got := f.sess.Responses[i].AnswerText; got != want {
			t.Errorf("answer %d = %q, want %q", i, got, want)
		}
	}
	if f.sess.QuestionIndex != 5 {
		t.Errorf("question index = %d, want 5 (one past closing)", f.sess.QuestionIndex)
	}
	if f.sess.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
	if f.hand.Calls() != 1 {
		t.Errorf("handoff ran %d times, want 1", f.hand.Calls())
	}
	if !f.tr.Left() {
		t.Error("transport not left")
	}
}

func TestSilentCandidateGetsSentinel(t *testing.T) {
	t.Parallel()

	role := fastRole()
	role.Technical = role.Technical[:1]
	role.Behavioral = nil
	role.TechnicalWaitBudget = 200 * time.Millisecond
	role.BehavioralWaitBudget = 200 * time.Millisecond // bounds the opening too

	f := newFixture(t, fastConfig(), role, noProbe{})

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()
	f.tr.EmitJoined("Ada")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interview did not finish")
	}

	if len(f.sess.Responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(f.sess.Responses))
	}
	for i, r := range f.sess.Responses {
		if r.AnswerText != session.NoResponseSentinel {
			t.Errorf("answer %d = %q, want sentinel", i, r.AnswerText)
		}
	}
}

func TestFragmentsExtendTheWindow(t *testing.T) {
	t.Parallel()

	role := fastRole()
	role.Technical = role.Technical[:1]
	role.Behavioral = nil
	role.TechnicalWaitBudget = 300 * time.Millisecond

	f := newFixture(t, fastConfig(), role, noProbe{})

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()
	f.tr.EmitJoined("Ada")

	// Three fragments spaced inside the quiet period must land in one answer
	// (the opening window is the first to open).
	time.Sleep(100 * time.Millisecond)
	for _, frag := range []string{"B-trees", "keep lookups", "fast."} {
		f.tr.EmitSpeech(frag, "candidate")
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interview did not finish")
	}

	want := "B-trees keep lookups fast."
	if got := f.sess.Responses[0].AnswerText; got != want {
		t.Errorf("answer = %q, want %q", got, want)
	}
}

func TestInterviewerFragmentsIgnored(t *testing.T) {
	t.Parallel()

	role := fastRole()
	role.Technical = role.Technical[:1]
	role.Behavioral = nil
	role.TechnicalWaitBudget = 300 * time.Millisecond
	role.BehavioralWaitBudget = 300 * time.Millisecond

	f := newFixture(t, fastConfig(), role, noProbe{})

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()
	f.tr.EmitJoined("Ada")

	time.Sleep(100 * time.Millisecond)
	f.tr.EmitSpeech("Explain indexing.", "interviewer")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interview did not finish")
	}

	if got := f.sess.Responses[0].AnswerText; got != session.NoResponseSentinel {
		t.Errorf("answer = %q, own speech must not count as an answer", got)
	}
}

func TestThinAnswerGetsOneFollowUp(t *testing.T) {
	t.Parallel()

	role := fastRole()
	role.Technical = role.Technical[:1]
	role.Behavioral = nil
	role.TechnicalWaitBudget = 300 * time.Millisecond

	judge := HeuristicJudge{MinWords: 10, EchoThreshold: 0.99}
	f := newFixture(t, fastConfig(), role, judge)

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()
	f.tr.EmitJoined("Ada")

	// The thin answer lands in the opening window; the probe reopens it once.
	// The follow-up answer is itself thin, which must NOT earn a second probe.
	time.Sleep(100 * time.Millisecond)
	f.tr.EmitSpeech("B-trees.", "candidate") // thin
	time.Sleep(250 * time.Millisecond)
	f.tr.EmitSpeech("They keep depth low.", "candidate") // still thin

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interview did not finish")
	}

	r := f.sess.Responses[0]
	if r.FollowUpText == "" {
		t.Fatal("expected a follow-up probe for a thin answer")
	}
	if r.FollowUpAnswer != "They keep depth low." {
		t.Errorf("follow-up answer = %q", r.FollowUpAnswer)
	}
	if r.AnswerText != "B-trees." {
		t.Errorf("original answer = %q", r.AnswerText)
	}
	// Spoken prompts: opening, one probe, the technical question, closing.
	// A second probe for the thin follow-up answer would make it five.
	if got := len(f.tr.SentAudio()); got != 4 {
		t.Errorf("prompts spoken = %d, want 4 (at most one probe per question)", got)
	}
}

func TestEndNowCompletesImmediately(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig(), fastRole(), noProbe{})

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()
	f.tr.EmitJoined("Ada")

	// Let the opening window open, then pull the plug.
	time.Sleep(150 * time.Millisecond)
	f.engine.EndNow()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interview did not finish")
	}

	if f.sess.State != session.StateCompleted {
		t.Fatalf("state = %s, want completed", f.sess.State)
	}
	if len(f.sess.Responses) > 1 {
		t.Errorf("responses = %d, want at most the interrupted one", len(f.sess.Responses))
	}
	// No further prompts after the command: only the opening was spoken.
	if got := len(f.tr.SentAudio()); got != 1 {
		t.Errorf("prompts spoken = %d, want 1 (opening only)", got)
	}
	if f.hand.Calls() != 1 {
		t.Errorf("handoff ran %d times, want 1", f.hand.Calls())
	}
	if !f.tr.Left() {
		t.Error("transport not left")
	}
}

func TestReapedSessionStaysAbandoned(t *testing.T) {
	t.Parallel()

	role := fastRole()
	role.Technical = role.Technical[:1]
	role.Behavioral = nil
	role.TechnicalWaitBudget = 600 * time.Millisecond
	role.BehavioralWaitBudget = 600 * time.Millisecond

	f := newFixture(t, fastConfig(), role, noProbe{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()
	f.tr.EmitJoined("Ada")

	// Abandon the stored session while the engine is silently waiting out the
	// opening window, the way the inactivity reaper would.
	time.Sleep(200 * time.Millisecond)
	stale, err := f.store.Get(ctx, f.sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	stale.State = session.StateAbandoned
	stale.Touch()
	if err := f.store.Save(ctx, stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run must not complete over a reaped session")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	stored, err := f.store.Get(ctx, f.sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != session.StateAbandoned {
		t.Fatalf("stored state = %s, abandoned is final", stored.State)
	}
	if f.hand.Calls() != 0 {
		t.Error("handoff must not run for a reaped session")
	}
}

func TestCandidateNoShow(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.JoinTimeout = 100 * time.Millisecond
	f := newFixture(t, cfg, fastRole(), noProbe{})

	err := f.engine.Run(context.Background())
	if !errors.Is(err, ErrCandidateNoShow) {
		t.Fatalf("Run = %v, want ErrCandidateNoShow", err)
	}
	if f.sess.State != session.StateError {
		t.Errorf("state = %s, want error", f.sess.State)
	}
	if f.hand.Calls() != 0 {
		t.Error("handoff must not run for a no-show")
	}
}

func TestTransportErrorFailsSession(t *testing.T) {
	t.Parallel()

	role := fastRole()
	role.Technical = role.Technical[:1]
	role.Behavioral = nil

	f := newFixture(t, fastConfig(), role, noProbe{})

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()
	f.tr.EmitJoined("Ada")

	time.Sleep(100 * time.Millisecond)
	f.tr.Emit(transport.Event{Type: transport.EventErrored, Err: errors.New("stream died")})

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run should fail on transport error")
		}
		if !strings.Contains(err.Error(), "stream died") {
			t.Errorf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interview did not finish")
	}

	if f.sess.State != session.StateError {
		t.Errorf("state = %s, want error", f.sess.State)
	}
}
