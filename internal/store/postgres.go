// Package store implements pipeline.Repository on PostgreSQL via pgx.
//
// Concurrency discipline: every transition runs in one transaction that
// takes a row lock with FOR UPDATE NOWAIT, so contention on the same
// application fails fast (SQLSTATE 55P03 → pipeline.ErrConflict) instead
// of queueing. Transitions on different applications proceed in parallel.
// The uniqueness guard is the partial unique index in schema.go, not any
// application-level locking.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"recruitment/pipeline-service/internal/pipeline"
)

// PostgreSQL error codes the repository branches on.
const (
	sqlstateUniqueViolation  = "23505"
	sqlstateForeignKey       = "23503"
	sqlstateLockNotAvailable = "55P03"
)

// isSQLState reports whether err carries the given PostgreSQL error
// code, however deeply wrapped.
func isSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Postgres is the durable pipeline.Repository.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ pipeline.Repository = (*Postgres)(nil)

// New returns a repository backed by the given pool.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (p *Postgres) CreateJob(ctx context.Context, job *pipeline.Job) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO jobs (id, title, department, location, status, openings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Title, job.Department, job.Location, string(job.Status), job.Openings, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("createJob insert: %w", err)
	}
	return nil
}

func (p *Postgres) ListJobs(ctx context.Context, statusFilter string) ([]pipeline.Job, error) {
	const base = `
		SELECT id, title, department, location, status, openings, created_at
		FROM jobs`

	var (
		rows pgx.Rows
		err  error
	)
	if statusFilter != "" {
		rows, err = p.pool.Query(ctx, base+` WHERE status = $1 ORDER BY created_at DESC`, statusFilter)
	} else {
		rows, err = p.pool.Query(ctx, base+` ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("listJobs query: %w", err)
	}
	defer rows.Close()

	jobs := make([]pipeline.Job, 0)
	for rows.Next() {
		var j pipeline.Job
		if err := rows.Scan(&j.ID, &j.Title, &j.Department, &j.Location, &j.Status, &j.Openings, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("listJobs scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ─── Candidates ──────────────────────────────────────────────────────────────

func (p *Postgres) CreateCandidate(ctx context.Context, c *pipeline.Candidate) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO candidates (id, full_name, email, resume_url, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.FullName, c.Email, c.ResumeURL, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("createCandidate insert: %w", err)
	}
	return nil
}

func (p *Postgres) ListCandidates(ctx context.Context) ([]pipeline.Candidate, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, full_name, email, resume_url, created_at
		 FROM candidates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listCandidates query: %w", err)
	}
	defer rows.Close()

	cs := make([]pipeline.Candidate, 0)
	for rows.Next() {
		var c pipeline.Candidate
		if err := rows.Scan(&c.ID, &c.FullName, &c.Email, &c.ResumeURL, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("listCandidates scan: %w", err)
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

// ─── Applications ────────────────────────────────────────────────────────────

func (p *Postgres) CreateApplication(ctx context.Context, app *pipeline.Application) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO applications
		   (id, job_id, candidate_id, status, score, applied_at, last_transition_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ID, app.Job, app.Candidate, string(app.Status), app.Score,
		app.AppliedAt, app.LastTransitionAt, app.Version,
	)
	if err != nil {
		switch {
		case isSQLState(err, sqlstateUniqueViolation):
			return &pipeline.ValidationError{
				Code: pipeline.CodeDuplicateApplication,
				Msg:  "candidate already has an active application for this job",
			}
		case isSQLState(err, sqlstateForeignKey):
			return &pipeline.ValidationError{
				Code: pipeline.CodeUnknownReference,
				Msg:  "job or candidate does not exist",
			}
		}
		return fmt.Errorf("createApplication insert: %w", err)
	}
	return nil
}

const applicationColumns = `
	id, job_id, candidate_id, status, score, reject_reason,
	applied_at, last_transition_at, hired_at, version`

func scanApplication(row pgx.Row) (*pipeline.Application, error) {
	var a pipeline.Application
	err := row.Scan(
		&a.ID, &a.Job, &a.Candidate, &a.Status, &a.Score, &a.RejectReason,
		&a.AppliedAt, &a.LastTransitionAt, &a.HiredAt, &a.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrNotFound
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}
	return &a, nil
}

func (p *Postgres) ListApplications(ctx context.Context, statusFilter string) ([]pipeline.Application, error) {
	base := `SELECT ` + applicationColumns + ` FROM applications`

	var (
		rows pgx.Rows
		err  error
	)
	if statusFilter != "" {
		rows, err = p.pool.Query(ctx, base+` WHERE status = $1 ORDER BY applied_at DESC`, statusFilter)
	} else {
		rows, err = p.pool.Query(ctx, base+` ORDER BY applied_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("listApplications query: %w", err)
	}
	defer rows.Close()

	apps := make([]pipeline.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("listApplications scan: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

func (p *Postgres) GetApplication(ctx context.Context, id uuid.UUID) (*pipeline.Application, error) {
	return scanApplication(p.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
}

// Transition loads the application under an exclusive row lock, lets
// decide inspect the current stage, and commits the stage update, the
// stage_history append and the audit_log append as one unit. Any error
// from decide rolls everything back.
func (p *Postgres) Transition(ctx context.Context, id uuid.UUID, decide pipeline.DecideFunc) (*pipeline.Application, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("transition begin: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := scanApplication(tx.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE NOWAIT`, id))
	if err != nil {
		if isSQLState(err, sqlstateLockNotAvailable) {
			return nil, pipeline.ErrConflict
		}
		return nil, err
	}

	change, err := decide(app)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var hiredAt *time.Time
	if pipeline.IsHired(change.To) {
		hiredAt = &now
	}
	var rejectReason *string
	if change.RejectReason != "" {
		rejectReason = &change.RejectReason
	}

	tag, err := tx.Exec(ctx,
		`UPDATE applications
		 SET status = $1, reject_reason = $2, last_transition_at = $3,
		     hired_at = COALESCE($4, hired_at), version = version + 1
		 WHERE id = $5 AND version = $6`,
		string(change.To), rejectReason, now, hiredAt, id, app.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("transition update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Another transition committed between our read and write.
		return nil, pipeline.ErrConflict
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO stage_history (application_id, from_stage, to_stage, note, entered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, string(app.Status), string(change.To), change.Note, now,
	); err != nil {
		return nil, fmt.Errorf("transition history append: %w", err)
	}

	data, err := json.Marshal(map[string]any{
		"old_status":    app.Status,
		"new_status":    change.To,
		"note":          change.Note,
		"reject_reason": change.RejectReason,
	})
	if err != nil {
		return nil, fmt.Errorf("transition audit payload: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (actor, verb, target_type, target_id, data, created_at)
		 VALUES ($1, $2, 'Application', $3, $4, $5)`,
		change.Actor, pipeline.VerbStatusChanged, id.String(), data, now,
	); err != nil {
		return nil, fmt.Errorf("transition audit append: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("transition commit: %w", err)
	}

	app.Status = change.To
	app.RejectReason = rejectReason
	app.LastTransitionAt = now
	if hiredAt != nil {
		app.HiredAt = hiredAt
	}
	app.Version++
	return app, nil
}

// ─── Ledger reads ────────────────────────────────────────────────────────────

func (p *Postgres) ListHistory(ctx context.Context, appID uuid.UUID) ([]pipeline.StageHistory, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, application_id, from_stage, to_stage, note, entered_at
		 FROM stage_history WHERE application_id = $1 ORDER BY id`,
		appID,
	)
	if err != nil {
		return nil, fmt.Errorf("listHistory query: %w", err)
	}
	defer rows.Close()

	entries := make([]pipeline.StageHistory, 0)
	for rows.Next() {
		var h pipeline.StageHistory
		if err := rows.Scan(&h.ID, &h.ApplicationID, &h.FromStage, &h.ToStage, &h.Note, &h.EnteredAt); err != nil {
			return nil, fmt.Errorf("listHistory scan: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func (p *Postgres) ListAudit(ctx context.Context, f pipeline.AuditFilter) ([]pipeline.AuditLog, error) {
	query := `SELECT id, actor, verb, target_type, target_id, data, created_at
	          FROM audit_log WHERE 1=1`
	args := make([]any, 0, 5)

	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if f.TargetType != "" {
		add(" AND target_type = $%d", f.TargetType)
	}
	if f.TargetID != "" {
		add(" AND target_id = $%d", f.TargetID)
	}
	if f.Actor != "" {
		add(" AND actor = $%d", f.Actor)
	}
	if !f.Since.IsZero() {
		add(" AND created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add(" AND created_at <= $%d", f.Until)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listAudit query: %w", err)
	}
	defer rows.Close()

	entries := make([]pipeline.AuditLog, 0)
	for rows.Next() {
		var e pipeline.AuditLog
		if err := rows.Scan(&e.ID, &e.Actor, &e.Verb, &e.TargetType, &e.TargetID, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("listAudit scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
