package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StageChange is the mutation a transition decision produces: the target
// stage plus the bookkeeping that must land in the same transaction.
type StageChange struct {
	To           Stage
	Note         string
	RejectReason string
	Actor        string
}

// DecideFunc is called by Repository.Transition with the freshly-read,
// exclusively-locked application. Returning an error aborts the
// transaction without writing anything.
type DecideFunc func(current *Application) (*StageChange, error)

// Repository owns all durable storage for the pipeline. Implementations
// must guarantee:
//
//   - CreateApplication enforces the one-active-application-per-
//     (candidate, job) constraint at the storage level and returns a
//     ValidationError with CodeDuplicateApplication when a concurrent
//     creator loses the race.
//   - Transition serializes against other transitions on the same
//     application, applies the stage update, the StageHistory append and
//     the AuditLog append as one atomic unit, and returns ErrConflict
//     when another transition committed first.
type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	ListJobs(ctx context.Context, statusFilter string) ([]Job, error)

	CreateCandidate(ctx context.Context, c *Candidate) error
	ListCandidates(ctx context.Context) ([]Candidate, error)

	CreateApplication(ctx context.Context, app *Application) error
	ListApplications(ctx context.Context, statusFilter string) ([]Application, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*Application, error)
	Transition(ctx context.Context, id uuid.UUID, decide DecideFunc) (*Application, error)

	ListHistory(ctx context.Context, appID uuid.UUID) ([]StageHistory, error)
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditLog, error)
}

// AuditFilter narrows the global audit trail query. Zero values mean
// "no filter".
type AuditFilter struct {
	TargetType string
	TargetID   string
	Actor      string
	Since      time.Time
	Until      time.Time
}
