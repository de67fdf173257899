package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vivahq/viva/internal/attempt"
)

// attemptRegistry is the Postgres-backed attempt.Registry. Atomicity of the
// one-attempt gate rides on the (candidate_email, role) primary key: the
// losing side of a concurrent insert sees zero affected rows.
type attemptRegistry struct {
	pool *pgxpool.Pool
}

var _ attempt.Registry = (*attemptRegistry)(nil)

func (r *attemptRegistry) CanStart(ctx context.Context, candidateEmail, role string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM attempts WHERE candidate_email = $1 AND role = $2)`,
		candidateEmail, role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check attempt: %w", err)
	}
	return !exists, nil
}

func (r *attemptRegistry) RegisterStart(ctx context.Context, candidateEmail, role, sessionID string) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (candidate_email, role, session_id, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (candidate_email, role) DO NOTHING`,
		candidateEmail, role, sessionID, attempt.StatusStarted,
	)
	if err != nil {
		return fmt.Errorf("postgres: register attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return attempt.ErrAlreadyAttempted
	}
	return nil
}

func (r *attemptRegistry) MarkInProgress(ctx context.Context, candidateEmail, role string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = $3, updated_at = now()
		 WHERE candidate_email = $1 AND role = $2 AND status = $4`,
		candidateEmail, role, attempt.StatusInProgress, attempt.StatusStarted,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark in progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already past started; disambiguate for the caller.
		if _, err := r.Get(ctx, candidateEmail, role); err != nil {
			return err
		}
	}
	return nil
}

func (r *attemptRegistry) MarkCompleted(ctx context.Context, candidateEmail, role string, score float64, summary string) error {
	// Abandonment is final; a late completion must not overwrite it.
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = $3, score = $4, summary = $5, updated_at = now()
		 WHERE candidate_email = $1 AND role = $2 AND status <> $6`,
		candidateEmail, role, attempt.StatusCompleted, score, summary, attempt.StatusAbandoned,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		rec, err := r.Get(ctx, candidateEmail, role)
		if err != nil {
			return err
		}
		if rec.Status == attempt.StatusAbandoned {
			return attempt.ErrAbandoned
		}
	}
	return nil
}

func (r *attemptRegistry) ReapAbandoned(ctx context.Context, maxAge time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = $1, updated_at = now()
		 WHERE status IN ($2, $3) AND updated_at < now() - $4::interval`,
		attempt.StatusAbandoned, attempt.StatusStarted, attempt.StatusInProgress,
		maxAge.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: reap attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *attemptRegistry) Get(ctx context.Context, candidateEmail, role string) (attempt.Record, error) {
	var rec attempt.Record
	err := r.pool.QueryRow(ctx,
		`SELECT candidate_email, role, session_id, status, score, summary, created_at, updated_at
		 FROM attempts WHERE candidate_email = $1 AND role = $2`,
		candidateEmail, role,
	).Scan(&rec.CandidateEmail, &rec.Role, &rec.SessionID, &rec.Status,
		&rec.Score, &rec.Summary, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return attempt.Record{}, attempt.ErrNotFound
	}
	if err != nil {
		return attempt.Record{}, fmt.Errorf("postgres: get attempt: %w", err)
	}
	return rec, nil
}
