// Package eval defines the Provider interface for interview evaluation
// backends.
//
// An evaluator receives the full transcript of a completed interview and
// returns a score with a written summary. Evaluation runs after the session
// has already reached its terminal state, so callers treat evaluator failure
// as recoverable: a degraded result is persisted instead.
//
// Implementations must be safe for concurrent use.
package eval

import "context"

// ResponseSummary is one question/answer pair from the interview transcript.
type ResponseSummary struct {
	Question     string `json:"question"`
	QuestionType string `json:"question_type"`
	Answer       string `json:"answer"`
	FollowUp     string `json:"follow_up,omitempty"`
}

// Request carries everything the evaluator needs to score an interview.
type Request struct {
	SessionID     string            `json:"session_id"`
	CandidateName string            `json:"candidate_name"`
	Role          string            `json:"role"`
	Responses     []ResponseSummary `json:"responses"`
}

// Result is the evaluator's verdict on one interview.
type Result struct {
	// Score is an overall rating in the range [0, 10].
	Score float64 `json:"score"`

	// Summary is a short written assessment.
	Summary string `json:"summary"`

	// Strengths lists notable positives observed in the answers.
	Strengths []string `json:"strengths"`

	// Concerns lists gaps or weaknesses observed in the answers.
	Concerns []string `json:"concerns"`
}

// Provider is the abstraction over any evaluation backend.
type Provider interface {
	// Evaluate scores the interview described by req. Returns an error if the
	// backend cannot produce a verdict; callers degrade rather than retry.
	Evaluate(ctx context.Context, req Request) (*Result, error)
}
