// Package session holds the interview session model and its persistence
// contract.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/vivahq/viva/pkg/transport"
)

// State is the lifecycle state of a session. The turn engine owns all
// transitions; everything else reads.
type State string

const (
	// StateCreated means the session exists but the transport has not joined.
	StateCreated State = "created"

	// StateWaiting means the interviewer joined and is waiting for the
	// candidate to appear.
	StateWaiting State = "waiting_for_candidate"

	// StateAsking means a scripted prompt is being delivered.
	StateAsking State = "asking"

	// StateAwaitingResponse means the response window for the current
	// question is open.
	StateAwaitingResponse State = "awaiting_response"

	// StateFollowUp means a follow-up probe was asked and its response window
	// is open.
	StateFollowUp State = "follow_up"

	// StateCompleting means the script is exhausted and the post-interview
	// handoff is running.
	StateCompleting State = "completing"

	// StateCompleted is terminal: the interview finished and was handed off.
	StateCompleted State = "completed"

	// StateError is terminal: the session died on an unrecoverable failure.
	StateError State = "error"

	// StateAbandoned is terminal: the session stalled and was reaped.
	StateAbandoned State = "abandoned"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateError, StateAbandoned:
		return true
	}
	return false
}

// NoResponseSentinel is recorded as the answer text when a response window
// closes without any captured speech.
const NoResponseSentinel = "(no response captured)"

// Candidate identifies who is being interviewed.
type Candidate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Response is the captured outcome of one question.
type Response struct {
	PromptText string `json:"prompt_text"`
	PromptType string `json:"prompt_type"`

	// AnswerText is the concatenated transcript of the candidate's answer, or
	// [NoResponseSentinel] when nothing was captured.
	AnswerText string `json:"answer_text"`

	// FollowUpText is the probe asked after a thin answer, empty when none
	// was asked.
	FollowUpText string `json:"follow_up_text,omitempty"`

	// FollowUpAnswer is the transcript captured for the follow-up probe.
	FollowUpAnswer string `json:"follow_up_answer,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Evaluation is the post-interview scoring outcome stored with the session.
type Evaluation struct {
	Score     float64  `json:"score"`
	Summary   string   `json:"summary"`
	Strengths []string `json:"strengths,omitempty"`
	Concerns  []string `json:"concerns,omitempty"`

	// Degraded is true when automated evaluation failed and Summary carries
	// the manual-review sentinel.
	Degraded bool `json:"degraded"`
}

// Session is one interview from creation to a terminal state.
type Session struct {
	ID        string         `json:"id"`
	Candidate Candidate      `json:"candidate"`
	Role      string         `json:"role"`
	Mode      transport.Mode `json:"mode"`
	JoinURL   string         `json:"join_url"`

	State State `json:"state"`

	// QuestionIndex is the script position. -1 before the first prompt.
	QuestionIndex int `json:"question_index"`

	Responses  []Response  `json:"responses"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`

	// Err records what killed the session when State is error.
	Err string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// CompletedAt is set exactly once, when the session reaches a terminal
	// state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a session in the created state.
func New(candidate Candidate, role string, mode transport.Mode, joinURL string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            uuid.NewString(),
		Candidate:     candidate,
		Role:          role,
		Mode:          mode,
		JoinURL:       joinURL,
		State:         StateCreated,
		QuestionIndex: -1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Touch bumps UpdatedAt. The reaper uses UpdatedAt as the liveness signal, so
// every state transition and captured fragment must touch the session.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
	if s.State.Terminal() && s.CompletedAt == nil {
		now := s.UpdatedAt
		s.CompletedAt = &now
	}
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (s *Session) Clone() *Session {
	out := *s
	out.Responses = make([]Response, len(s.Responses))
	copy(out.Responses, s.Responses)
	if s.Evaluation != nil {
		ev := *s.Evaluation
		ev.Strengths = append([]string(nil), s.Evaluation.Strengths...)
		ev.Concerns = append([]string(nil), s.Evaluation.Concerns...)
		out.Evaluation = &ev
	}
	if s.CompletedAt != nil {
		done := *s.CompletedAt
		out.CompletedAt = &done
	}
	return &out
}
