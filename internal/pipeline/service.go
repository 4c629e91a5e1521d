package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"recruitment/pipeline-service/pkg/logging"
)

// Redis channels for downstream consumers (gateway SSE, reporting).
// Publishing is best-effort: a failed publish never fails the request.
const (
	eventApplicationCreated = "EVENT_APPLICATION_CREATED"
	eventStageChanged       = "EVENT_STAGE_CHANGED"
)

// Service encapsulates all pipeline business logic. It is
// transport-agnostic: it has no dependency on net/http and can be used by
// any transport layer.
type Service struct {
	repo  Repository
	rdb   *redis.Client
	rules *Rules
	log   *logging.Logger
}

// NewService returns a configured Service. rdb may be nil when no event
// bus is attached (tests, offline tools).
func NewService(repo Repository, rdb *redis.Client, rules *Rules, log *logging.Logger) *Service {
	return &Service{repo: repo, rdb: rdb, rules: rules, log: log}
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

// CreateJob persists a new job posting. Status defaults to open and
// openings to 1 when unset.
func (s *Service) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	if strings.TrimSpace(job.Title) == "" {
		return nil, &ValidationError{Code: CodeInvalidRequest, Msg: "job title is required"}
	}
	if job.Status == "" {
		job.Status = JobOpen
	}
	if job.Status != JobOpen && job.Status != JobClosed {
		return nil, &ValidationError{Code: CodeInvalidRequest, Msg: "job status must be open or closed"}
	}
	if job.Openings <= 0 {
		job.Openings = 1
	}
	job.ID = uuid.New()
	job.CreatedAt = time.Now().UTC()

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.log.Info("job created", "jobId", job.ID, "title", job.Title)
	return job, nil
}

// ListJobs returns job postings, optionally filtered by open/closed status.
func (s *Service) ListJobs(ctx context.Context, statusFilter string) ([]Job, error) {
	if statusFilter != "" && statusFilter != string(JobOpen) && statusFilter != string(JobClosed) {
		return nil, &ValidationError{Code: CodeInvalidRequest, Msg: "status filter must be open or closed"}
	}
	return s.repo.ListJobs(ctx, statusFilter)
}

// ─── Candidates ──────────────────────────────────────────────────────────────

// CreateCandidate persists a new candidate profile.
func (s *Service) CreateCandidate(ctx context.Context, c *Candidate) (*Candidate, error) {
	if strings.TrimSpace(c.FullName) == "" || strings.TrimSpace(c.Email) == "" {
		return nil, &ValidationError{Code: CodeInvalidRequest, Msg: "candidate full_name and email are required"}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	return c, s.repo.CreateCandidate(ctx, c)
}

// ListCandidates returns all candidate profiles.
func (s *Service) ListCandidates(ctx context.Context) ([]Candidate, error) {
	return s.repo.ListCandidates(ctx)
}

// ─── Applications ────────────────────────────────────────────────────────────

// CreateApplication opens a new application at the applied stage. The
// storage-level uniqueness constraint guarantees at most one active
// application per (candidate, job) pair even under concurrent creators;
// a loser receives a duplicate-application ValidationError.
func (s *Service) CreateApplication(ctx context.Context, jobID, candidateID uuid.UUID, score int) (*Application, error) {
	if err := s.rules.ValidateScore(score); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	app := &Application{
		ID:               uuid.New(),
		Job:              jobID,
		Candidate:        candidateID,
		Status:           StageApplied,
		Score:            score,
		AppliedAt:        now,
		LastTransitionAt: now,
		Version:          1,
	}
	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, err
	}

	s.log.Info("application created",
		"applicationId", app.ID, "jobId", jobID, "candidateId", candidateID)
	s.publish(ctx, eventApplicationCreated, map[string]string{
		"type":          eventApplicationCreated,
		"applicationId": app.ID.String(),
		"jobId":         jobID.String(),
		"candidateId":   candidateID.String(),
	})
	return app, nil
}

// ListApplications returns applications newest first, optionally
// filtered by their current stage.
func (s *Service) ListApplications(ctx context.Context, stageFilter string) ([]Application, error) {
	if stageFilter != "" {
		if _, err := ParseStage(stageFilter); err != nil {
			return nil, &ValidationError{Code: CodeInvalidStage, Msg: err.Error()}
		}
	}
	return s.repo.ListApplications(ctx, stageFilter)
}

// UpdateStatus transitions an application to a new pipeline stage.
//
// The decision runs against the stage read under the repository's
// exclusive lock, and the stage update, StageHistory append and AuditLog
// append commit as one atomic unit. Returns ErrNotFound for an unknown
// id, a ValidationError when the state machine denies the move, and
// ErrConflict when a concurrent transition won the race.
func (s *Service) UpdateStatus(ctx context.Context, appID uuid.UUID, newStageStr, actor, note, rejectReason string) (*Application, error) {
	newStage, err := ParseStage(newStageStr)
	if err != nil {
		return nil, &ValidationError{Code: CodeInvalidStage, Msg: err.Error()}
	}

	var fromStage Stage
	app, err := s.repo.Transition(ctx, appID, func(current *Application) (*StageChange, error) {
		fromStage = current.Status
		if err := s.rules.ValidateTransition(current.Status, newStage, rejectReason); err != nil {
			return nil, err
		}
		change := &StageChange{To: newStage, Note: note, Actor: actor}
		if newStage == StageRejected {
			change.RejectReason = rejectReason
		}
		return change, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("application stage changed",
		"applicationId", appID, "from", fromStage, "to", newStage, "actor", actor)
	s.publish(ctx, eventStageChanged, map[string]string{
		"type":          eventStageChanged,
		"applicationId": appID.String(),
		"actor":         actor,
		"from":          string(fromStage),
		"to":            string(newStage),
	})
	return app, nil
}

// GetApplication returns one application with its chronological stage
// history and the derived metrics evaluated at read time.
func (s *Service) GetApplication(ctx context.Context, appID uuid.UUID) (*ApplicationDetail, error) {
	app, err := s.repo.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, appID)
	if err != nil {
		return nil, err
	}

	detail := &ApplicationDetail{
		Application:        *app,
		StageHistory:       history,
		TimeInStageSeconds: TimeInStage(app, time.Now().UTC()).Seconds(),
	}
	if days, ok := DaysToHire(app); ok {
		detail.DaysToHire = &days
	}
	return detail, nil
}

// ListAudit returns the global audit trail, newest first.
func (s *Service) ListAudit(ctx context.Context, f AuditFilter) ([]AuditLog, error) {
	return s.repo.ListAudit(ctx, f)
}

// publish sends an event to Redis for downstream consumers (non-fatal).
func (s *Service) publish(ctx context.Context, channel string, payload map[string]string) {
	if s.rdb == nil {
		return
	}
	event, _ := json.Marshal(payload)
	if err := s.rdb.Publish(ctx, channel, event).Err(); err != nil {
		s.log.Warn("publish failed", "channel", channel, "err", err)
	}
}
