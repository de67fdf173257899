// Package attempt enforces the one-interview-per-candidate-per-role rule.
//
// The registry is the single authority on whether a candidate may start an
// interview for a role. Registration is atomic: two concurrent starts for the
// same (candidate, role) pair resolve to exactly one winner. An attempt that
// ends in the abandoned state still counts; abandonment never re-opens the
// gate.
package attempt

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by [Registry] implementations.
var (
	// ErrAlreadyAttempted is returned when the (candidate, role) pair has a
	// registered attempt in any status.
	ErrAlreadyAttempted = errors.New("attempt: candidate already attempted this role")

	// ErrNotFound is returned when no attempt exists for the pair.
	ErrNotFound = errors.New("attempt: not found")

	// ErrAbandoned is returned when a completion lands on an attempt the
	// reaper already abandoned. Abandonment is final; the late result is
	// discarded.
	ErrAbandoned = errors.New("attempt: attempt was abandoned")
)

// Status is the lifecycle state of an attempt.
type Status string

const (
	// StatusStarted means the attempt is registered but the candidate has not
	// yet joined.
	StatusStarted Status = "started"

	// StatusInProgress means the interview conversation is under way.
	StatusInProgress Status = "in_progress"

	// StatusCompleted means the interview ran to completion (including
	// operator-triggered early completion).
	StatusCompleted Status = "completed"

	// StatusAbandoned means the attempt stalled and was reaped. It still
	// consumes the candidate's single attempt.
	StatusAbandoned Status = "abandoned"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusStarted, StatusInProgress, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Record is one registered attempt.
type Record struct {
	CandidateEmail string
	Role           string
	SessionID      string
	Status         Status

	// Score and Summary are populated on completion.
	Score   float64
	Summary string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Registry tracks attempts. Implementations must be safe for concurrent use.
type Registry interface {
	// CanStart reports whether the pair has no prior attempt. It is advisory;
	// only RegisterStart is authoritative.
	CanStart(ctx context.Context, candidateEmail, role string) (bool, error)

	// RegisterStart atomically claims the pair's single attempt and binds it
	// to sessionID. Returns [ErrAlreadyAttempted] if any attempt exists,
	// regardless of its status.
	RegisterStart(ctx context.Context, candidateEmail, role, sessionID string) error

	// MarkInProgress moves a started attempt to in_progress. Attempts already
	// past started are left unchanged.
	MarkInProgress(ctx context.Context, candidateEmail, role string) error

	// MarkCompleted finalises the attempt with its evaluation outcome. The
	// lifecycle only moves forward: completing an abandoned attempt returns
	// [ErrAbandoned].
	MarkCompleted(ctx context.Context, candidateEmail, role string, score float64, summary string) error

	// ReapAbandoned marks every non-terminal attempt older than maxAge as
	// abandoned and returns how many were reaped.
	ReapAbandoned(ctx context.Context, maxAge time.Duration) (int, error)

	// Get returns the attempt for the pair, or [ErrNotFound].
	Get(ctx context.Context, candidateEmail, role string) (Record, error)
}
