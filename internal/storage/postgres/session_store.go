package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vivahq/viva/internal/session"
	"github.com/vivahq/viva/pkg/transport"
)

// sessionStore is the Postgres-backed session.Store. Responses and the
// evaluation are stored as JSONB; the hot columns (state, updated_at) are
// plain columns so the reaper query stays indexable.
type sessionStore struct {
	pool *pgxpool.Pool
}

var _ session.Store = (*sessionStore)(nil)

func (s *sessionStore) Save(ctx context.Context, sess *session.Session) error {
	responses, err := json.Marshal(sess.Responses)
	if err != nil {
		return fmt.Errorf("postgres: marshal responses: %w", err)
	}
	var evaluation []byte
	if sess.Evaluation != nil {
		evaluation, err = json.Marshal(sess.Evaluation)
		if err != nil {
			return fmt.Errorf("postgres: marshal evaluation: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions
		   (id, candidate_name, candidate_email, role, mode, join_url, state,
		    question_index, responses, evaluation, error, created_at, updated_at,
		    completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		   state = EXCLUDED.state,
		   question_index = EXCLUDED.question_index,
		   responses = EXCLUDED.responses,
		   evaluation = EXCLUDED.evaluation,
		   error = EXCLUDED.error,
		   updated_at = EXCLUDED.updated_at,
		   completed_at = COALESCE(sessions.completed_at, EXCLUDED.completed_at)`,
		sess.ID, sess.Candidate.Name, sess.Candidate.Email, sess.Role, sess.Mode,
		sess.JoinURL, sess.State, sess.QuestionIndex, responses, evaluation,
		sess.Err, sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save session: %w", err)
	}
	return nil
}

func (s *sessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, candidate_name, candidate_email, role, mode, join_url, state,
		        question_index, responses, evaluation, error, created_at, updated_at,
		        completed_at
		 FROM sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get session: %w", err)
	}
	return sess, nil
}

func (s *sessionStore) ListUnfinished(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, candidate_name, candidate_email, role, mode, join_url, state,
		        question_index, responses, evaluation, error, created_at, updated_at,
		        completed_at
		 FROM sessions
		 WHERE state NOT IN ($1, $2, $3)
		 ORDER BY updated_at`,
		session.StateCompleted, session.StateError, session.StateAbandoned)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unfinished: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unfinished: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		sess       session.Session
		mode       string
		state      string
		responses  []byte
		evaluation []byte
	)
	err := row.Scan(&sess.ID, &sess.Candidate.Name, &sess.Candidate.Email,
		&sess.Role, &mode, &sess.JoinURL, &state, &sess.QuestionIndex,
		&responses, &evaluation, &sess.Err, &sess.CreatedAt, &sess.UpdatedAt,
		&sess.CompletedAt)
	if err != nil {
		return nil, err
	}
	sess.Mode = transport.Mode(mode)
	sess.State = session.State(state)

	if err := json.Unmarshal(responses, &sess.Responses); err != nil {
		return nil, fmt.Errorf("unmarshal responses: %w", err)
	}
	if len(evaluation) > 0 {
		sess.Evaluation = &session.Evaluation{}
		if err := json.Unmarshal(evaluation, sess.Evaluation); err != nil {
			return nil, fmt.Errorf("unmarshal evaluation: %w", err)
		}
	}
	return &sess, nil
}
