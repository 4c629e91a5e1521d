package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the logical layout from §6: jobs, candidates, applications
// (with the partial unique index backing the uniqueness guard),
// stage_history and audit_log (both append-only).
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         UUID PRIMARY KEY,
	title      TEXT NOT NULL,
	department TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
	openings   INT  NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS candidates (
	id         UUID PRIMARY KEY,
	full_name  TEXT NOT NULL,
	email      TEXT NOT NULL,
	resume_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS applications (
	id                 UUID PRIMARY KEY,
	job_id             UUID NOT NULL REFERENCES jobs(id),
	candidate_id       UUID NOT NULL REFERENCES candidates(id),
	status             TEXT NOT NULL DEFAULT 'applied',
	score              INT  NOT NULL CHECK (score BETWEEN 0 AND 100),
	reject_reason      TEXT,
	applied_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_transition_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	hired_at           TIMESTAMPTZ,
	version            BIGINT NOT NULL DEFAULT 1
);

-- Uniqueness guard: at most one non-terminal application per
-- (candidate, job) pair. A losing concurrent creator hits 23505.
CREATE UNIQUE INDEX IF NOT EXISTS unique_active_application
	ON applications (candidate_id, job_id)
	WHERE status NOT IN ('hired', 'rejected');

CREATE TABLE IF NOT EXISTS stage_history (
	id             BIGSERIAL PRIMARY KEY,
	application_id UUID NOT NULL REFERENCES applications(id),
	from_stage     TEXT NOT NULL,
	to_stage       TEXT NOT NULL,
	note           TEXT NOT NULL DEFAULT '',
	entered_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS stage_history_application
	ON stage_history (application_id, id);

CREATE TABLE IF NOT EXISTS audit_log (
	id          BIGSERIAL PRIMARY KEY,
	actor       TEXT NOT NULL,
	verb        TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	data        JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS audit_log_target
	ON audit_log (target_type, target_id);
`

// Migrate applies the schema. All statements are idempotent, so running
// it on every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
