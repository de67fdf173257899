package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vivahq/viva/internal/observe"
	"github.com/vivahq/viva/internal/script"
	"github.com/vivahq/viva/internal/session"
	"github.com/vivahq/viva/internal/voice"
	"github.com/vivahq/viva/pkg/transport"
)

// ErrCandidateNoShow is the terminal error when the candidate never joins
// within the join timeout.
var ErrCandidateNoShow = errors.New("engine: candidate did not join")

// CompletionHandler runs the post-interview handoff: evaluation, final
// persistence and attempt completion.
type CompletionHandler interface {
	Complete(ctx context.Context, s *session.Session) error
}

// Config tunes the turn loop.
type Config struct {
	// QuietPeriod is the silence that closes an answer once the candidate has
	// spoken.
	QuietPeriod time.Duration

	// JoinTimeout bounds the wait for the candidate to appear.
	JoinTimeout time.Duration

	// InterQuestionPause is the breathing room between turns.
	InterQuestionPause time.Duration

	// SpeakerLabel is the interviewer's own diarization label; fragments
	// carrying it are discarded.
	SpeakerLabel string
}

// Deps are the collaborators the engine drives. Store failures mid-flight
// are logged and swallowed so a flaky store cannot kill a live interview.
type Deps struct {
	Transport transport.Transport
	Script    *script.Script
	Voice     *voice.Cache
	Store     session.Store
	Locks     *session.LockTable
	Judge     FollowUpJudge
	Handoff   CompletionHandler
	Metrics   *observe.Metrics
}

// Engine runs one session. Create with [New], drive with [Run]; Run is a
// blocking call that owns the session until it reaches a terminal state.
type Engine struct {
	cfg  Config
	deps Deps
	sess *session.Session
	cmds chan command
}

type command int

const cmdEndNow command = iota

// New creates an engine bound to one session.
func New(cfg Config, deps Deps, sess *session.Session) *Engine {
	return &Engine{
		cfg:  cfg,
		deps: deps,
		sess: sess,
		cmds: make(chan command, 1),
	}
}

// EndNow asks the engine to finish the interview early, keeping everything
// captured so far. Safe to call from any goroutine; a second call is a no-op.
func (e *Engine) EndNow() {
	select {
	case e.cmds <- cmdEndNow:
	default:
	}
}

// Run drives the interview to a terminal state. It always returns with the
// session terminal and the transport left.
func (e *Engine) Run(ctx context.Context) error {
	log := slog.With("session_id", e.sess.ID, "role", e.sess.Role)

	if err := e.deps.Transport.Join(ctx); err != nil {
		e.fatal(ctx, fmt.Errorf("join transport: %w", err))
		return fmt.Errorf("engine: join transport: %w", err)
	}

	// Warm the voice cache in the background while we wait for the candidate.
	go e.deps.Voice.Prepare(ctx, e.deps.Script.Texts())

	if err := e.transition(ctx, func(s *session.Session) { s.State = session.StateWaiting }); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	log.Info("waiting for candidate", "join_timeout", e.cfg.JoinTimeout)

	if err := e.awaitCandidate(ctx); err != nil {
		if errors.Is(err, errEndRequested) {
			log.Info("ended before candidate joined")
			return e.complete(ctx)
		}
		e.fatal(ctx, err)
		return fmt.Errorf("engine: %w", err)
	}
	log.Info("candidate joined")

	for i := 0; i < e.deps.Script.Len(); i++ {
		prompt, _ := e.deps.Script.Prompt(i)

		if err := e.transition(ctx, func(s *session.Session) {
			s.State = session.StateAsking
			s.QuestionIndex = i
		}); err != nil {
			return fmt.Errorf("engine: %w", err)
		}

		if err := e.speak(ctx, prompt.Text); err != nil {
			e.fatal(ctx, err)
			return fmt.Errorf("engine: %w", err)
		}

		if !prompt.ExpectsResponse {
			continue
		}

		resp, err := e.runTurn(ctx, prompt)
		if err != nil {
			switch {
			case errors.Is(err, errEndRequested):
				// Straight to completion: remaining prompts, closing included,
				// are skipped, keeping whatever the window captured.
				log.Info("early end requested")
				if resp.AnswerText != "" && resp.AnswerText != session.NoResponseSentinel {
					if terr := e.transition(ctx, func(s *session.Session) {
						s.Responses = append(s.Responses, resp)
					}); terr != nil {
						return fmt.Errorf("engine: %w", terr)
					}
				}
				return e.complete(ctx)
			case errors.Is(err, errSessionReaped):
				return fmt.Errorf("engine: %w", err)
			default:
				e.fatal(ctx, err)
				return fmt.Errorf("engine: %w", err)
			}
		}

		if err := e.transition(ctx, func(s *session.Session) {
			s.Responses = append(s.Responses, resp)
		}); err != nil {
			return fmt.Errorf("engine: %w", err)
		}

		if err := e.deps.Transport.SendText(ctx, "Thank you."); err != nil {
			log.Debug("acknowledgment failed", "err", err)
		}
		if e.cfg.InterQuestionPause > 0 && i < e.deps.Script.Len()-1 {
			select {
			case <-time.After(e.cfg.InterQuestionPause):
			case <-ctx.Done():
				e.fatal(ctx, ctx.Err())
				return fmt.Errorf("engine: %w", ctx.Err())
			}
		}
	}

	return e.complete(ctx)
}

// errEndRequested propagates an operator EndNow out of a turn.
var errEndRequested = errors.New("engine: end requested")

// errSessionReaped aborts a run whose session another actor already drove to
// a terminal state (the inactivity reaper, in practice).
var errSessionReaped = errors.New("engine: session already terminal")

// awaitCandidate blocks until anybody joins the meeting surface.
func (e *Engine) awaitCandidate(ctx context.Context) error {
	timeout := time.NewTimer(e.cfg.JoinTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return ErrCandidateNoShow
		case <-e.cmds:
			return errEndRequested
		case ev, ok := <-e.deps.Transport.Events():
			if !ok {
				return errors.New("transport closed while waiting for candidate")
			}
			switch ev.Type {
			case transport.EventJoined:
				return nil
			case transport.EventErrored:
				return fmt.Errorf("transport failed: %w", ev.Err)
			}
		}
	}
}

// runTurn asks nothing (the prompt was already spoken) and collects the
// answer, optionally probing once with a follow-up.
func (e *Engine) runTurn(ctx context.Context, prompt script.Prompt) (session.Response, error) {
	resp := session.Response{
		PromptText: prompt.Text,
		PromptType: string(prompt.Type),
		StartedAt:  time.Now().UTC(),
	}

	if err := e.transition(ctx, func(s *session.Session) { s.State = session.StateAwaitingResponse }); err != nil {
		return resp, err
	}

	answer, err := e.collect(ctx, prompt.ResponseWaitBudget)
	if errors.Is(err, errEndRequested) {
		resp.AnswerText = answer
		resp.EndedAt = time.Now().UTC()
		return resp, err
	}
	if err != nil {
		return resp, err
	}
	resp.AnswerText = answer

	if probe := e.deps.Judge.Probe(prompt, answer); probe != "" {
		resp.FollowUpText = probe
		if err := e.transition(ctx, func(s *session.Session) { s.State = session.StateFollowUp }); err != nil {
			return resp, err
		}

		if err := e.speak(ctx, probe); err != nil {
			return resp, err
		}
		followUp, err := e.collect(ctx, prompt.ResponseWaitBudget)
		if err != nil && !errors.Is(err, errEndRequested) {
			return resp, err
		}
		resp.FollowUpAnswer = followUp
		if errors.Is(err, errEndRequested) {
			resp.EndedAt = time.Now().UTC()
			return resp, err
		}
	}

	resp.EndedAt = time.Now().UTC()
	e.deps.Metrics.TurnObserved(ctx, string(prompt.Type), resp.EndedAt.Sub(resp.StartedAt))
	return resp, nil
}

// collect runs one response window: fragments accumulate until the candidate
// stays quiet for the quiet period, the budget expires, the operator ends the
// interview, or the transport dies. An empty window yields the no-response
// sentinel.
func (e *Engine) collect(ctx context.Context, budget time.Duration) (string, error) {
	var fragments []string

	quiet := time.NewTimer(e.cfg.QuietPeriod)
	defer quiet.Stop()
	budgetT := time.NewTimer(budget)
	defer budgetT.Stop()

	resetQuiet := func() {
		if !quiet.Stop() {
			select {
			case <-quiet.C:
			default:
			}
		}
		quiet.Reset(e.cfg.QuietPeriod)
	}

	finish := func() string {
		if len(fragments) == 0 {
			return session.NoResponseSentinel
		}
		return joinFragments(fragments)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-e.cmds:
			return finish(), errEndRequested

		case <-budgetT.C:
			return finish(), nil

		case <-quiet.C:
			if len(fragments) == 0 {
				// Nothing said yet: the quiet period only closes an answer
				// that exists. Keep waiting until the budget says otherwise.
				quiet.Reset(e.cfg.QuietPeriod)
				continue
			}
			return finish(), nil

		case ev, ok := <-e.deps.Transport.Events():
			if !ok {
				return "", errors.New("transport closed mid-answer")
			}
			switch ev.Type {
			case transport.EventSpeech:
				if ev.SpeakerLabel == e.cfg.SpeakerLabel {
					continue
				}
				// Interim hypotheses prove the candidate is talking and hold
				// the window open; only finalised segments are kept.
				if ev.IsFinal && ev.Text != "" {
					fragments = append(fragments, ev.Text)
					if err := e.transition(ctx, func(s *session.Session) {}); err != nil {
						return "", err
					}
				}
				resetQuiet()
			case transport.EventLeft:
				return "", fmt.Errorf("candidate left mid-interview (%s)", ev.Participant)
			case transport.EventErrored:
				return "", fmt.Errorf("transport failed: %w", ev.Err)
			}
		}
	}
}

// speak plays the synthesized prompt, degrading to a text message when
// synthesis is unavailable.
func (e *Engine) speak(ctx context.Context, text string) error {
	start := time.Now()
	clip := e.deps.Voice.Resolve(ctx, text)
	if clip != nil {
		e.deps.Metrics.SynthesisObserved(ctx, time.Since(start))
	}

	if err := e.deps.Transport.SendAudio(ctx, clip); err != nil {
		return fmt.Errorf("play prompt: %w", err)
	}
	if clip == nil {
		if err := e.deps.Transport.SendText(ctx, text); err != nil {
			return fmt.Errorf("deliver prompt as text: %w", err)
		}
		return nil
	}

	// Playback is fire-and-forget on the transport side; pace the loop so
	// the response window does not open mid-sentence.
	select {
	case <-time.After(clip.Duration()):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete leaves the meeting and runs the handoff exactly once.
func (e *Engine) complete(ctx context.Context) error {
	log := slog.With("session_id", e.sess.ID)

	if err := e.transition(ctx, func(s *session.Session) {
		s.State = session.StateCompleting
		// The cursor lands one past the closing prompt on completion.
		s.QuestionIndex = e.deps.Script.Len()
	}); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if err := e.deps.Transport.Leave(ctx); err != nil {
		log.Warn("leave transport failed", "err", err)
	}

	if err := e.deps.Handoff.Complete(ctx, e.sess); err != nil {
		e.fatal(ctx, fmt.Errorf("completion handoff: %w", err))
		return fmt.Errorf("engine: completion handoff: %w", err)
	}

	if err := e.transition(ctx, func(s *session.Session) { s.State = session.StateCompleted }); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.deps.Locks.Remove(e.sess.ID)
	e.deps.Metrics.InterviewFinished(ctx, "completed")
	log.Info("interview completed", "responses", len(e.sess.Responses))
	return nil
}

// fatal moves the session to the error state and tears the transport down.
func (e *Engine) fatal(ctx context.Context, cause error) {
	slog.Error("interview failed", "session_id", e.sess.ID, "err", cause)

	if err := e.transition(context.Background(), func(s *session.Session) {
		s.State = session.StateError
		s.Err = cause.Error()
	}); err != nil {
		// Already terminal elsewhere; the stored state stands.
		slog.Debug("error transition skipped", "session_id", e.sess.ID, "err", err)
	}
	// Leave with a fresh context; the session ctx may already be cancelled.
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.deps.Transport.Leave(leaveCtx); err != nil {
		slog.Debug("leave after failure", "session_id", e.sess.ID, "err", err)
	}
	e.deps.Locks.Remove(e.sess.ID)
	e.deps.Metrics.InterviewFinished(ctx, "error")
}

// transition applies fn to the session under its lock, touches it and saves
// best-effort. Save failures degrade durability, not the interview.
//
// The stored state is re-read under the lock first: if the reaper abandoned
// the session while the engine sat in a response window, the terminal state
// wins and [errSessionReaped] aborts the run instead of resurrecting it.
func (e *Engine) transition(ctx context.Context, fn func(s *session.Session)) error {
	e.deps.Locks.Lock(e.sess.ID)
	if stored, err := e.deps.Store.Get(ctx, e.sess.ID); err == nil &&
		stored.State.Terminal() && !e.sess.State.Terminal() {
		e.deps.Locks.Unlock(e.sess.ID)
		e.deps.Locks.Remove(e.sess.ID)
		return fmt.Errorf("%w (stored state %s)", errSessionReaped, stored.State)
	}
	fn(e.sess)
	e.sess.Touch()
	snapshot := e.sess.Clone()
	e.deps.Locks.Unlock(e.sess.ID)

	if err := e.deps.Store.Save(ctx, snapshot); err != nil {
		slog.Warn("session save failed, continuing", "session_id", e.sess.ID, "err", err)
	}
	return nil
}

func joinFragments(fragments []string) string {
	return strings.Join(fragments, " ")
}
