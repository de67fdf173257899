package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in full on every startup; every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS attempts (
    candidate_email TEXT        NOT NULL,
    role            TEXT        NOT NULL,
    session_id      TEXT        NOT NULL,
    status          TEXT        NOT NULL,
    score           DOUBLE PRECISION NOT NULL DEFAULT 0,
    summary         TEXT        NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (candidate_email, role)
);

CREATE INDEX IF NOT EXISTS attempts_status_idx ON attempts (status, updated_at);

CREATE TABLE IF NOT EXISTS sessions (
    id             TEXT        PRIMARY KEY,
    candidate_name TEXT        NOT NULL,
    candidate_email TEXT       NOT NULL,
    role           TEXT        NOT NULL,
    mode           TEXT        NOT NULL,
    join_url       TEXT        NOT NULL,
    state          TEXT        NOT NULL,
    question_index INTEGER     NOT NULL,
    responses      JSONB       NOT NULL DEFAULT '[]'::jsonb,
    evaluation     JSONB,
    error          TEXT        NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    completed_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS sessions_state_idx ON sessions (state, updated_at);
`

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
