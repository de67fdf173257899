package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Store.Get] for an unknown session ID.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions. Implementations must be safe for concurrent use.
//
// Mid-flight save failures are deliberately tolerated by callers: the engine
// logs and continues, so a flaky store degrades durability rather than
// killing live interviews.
type Store interface {
	// Save upserts the session by ID.
	Save(ctx context.Context, s *Session) error

	// Get returns a copy of the session, or [ErrNotFound].
	Get(ctx context.Context, id string) (*Session, error)

	// ListUnfinished returns every session not yet in a terminal state.
	ListUnfinished(ctx context.Context) ([]*Session, error)
}
