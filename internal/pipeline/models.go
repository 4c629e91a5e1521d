package pipeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the open/closed flag on a job posting.
type JobStatus string

const (
	JobOpen   JobStatus = "open"
	JobClosed JobStatus = "closed"
)

// Job is a job opening available for recruitment.
type Job struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Department string    `json:"department"`
	Location   string    `json:"location"`
	Status     JobStatus `json:"status"`
	Openings   int       `json:"openings"`
	CreatedAt  time.Time `json:"created_at"`
}

// Candidate is an individual applicant.
type Candidate struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	ResumeURL string    `json:"resume_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Application tracks one candidate's progress through the pipeline for one
// job. Plain data: all storage access goes through Repository, and all
// stage mutation goes through Service.UpdateStatus.
type Application struct {
	ID               uuid.UUID  `json:"id"`
	Job              uuid.UUID  `json:"job"`
	Candidate        uuid.UUID  `json:"candidate"`
	Status           Stage      `json:"status"`
	Score            int        `json:"score"`
	RejectReason     *string    `json:"reject_reason,omitempty"`
	AppliedAt        time.Time  `json:"applied_at"`
	LastTransitionAt time.Time  `json:"last_transition_at"`
	HiredAt          *time.Time `json:"hired_at,omitempty"`

	// Version increments on every committed transition; the repository
	// uses it to detect a lost race.
	Version int64 `json:"-"`
}

// IsActive reports whether the application still occupies the
// (candidate, job) uniqueness slot.
func (a *Application) IsActive(rules *Rules) bool {
	return !rules.IsTerminal(a.Status)
}

// StageHistory is one immutable entry of an application's stage trail.
// Insertion order is chronological order.
type StageHistory struct {
	ID            int64     `json:"id"`
	ApplicationID uuid.UUID `json:"application"`
	FromStage     Stage     `json:"from_stage"`
	ToStage       Stage     `json:"to_stage"`
	Note          string    `json:"note,omitempty"`
	EnteredAt     time.Time `json:"entered_at"`
}

// AuditLog is one immutable entry of the system-wide audit trail:
// who did what, to which entity, when. Never updated or deleted.
type AuditLog struct {
	ID         int64           `json:"id"`
	Actor      string          `json:"actor"`
	Verb       string          `json:"verb"`
	TargetType string          `json:"target_type"`
	TargetID   string          `json:"target_id"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Audit verbs written by the transition path.
const (
	VerbStatusChanged = "application_status_changed"
)

// ApplicationDetail is the read-side shape for a single application:
// the stored record plus its chronological history and the derived
// metrics, computed explicitly by the read path.
type ApplicationDetail struct {
	Application
	StageHistory       []StageHistory `json:"stage_history"`
	DaysToHire         *int           `json:"days_to_hire,omitempty"`
	TimeInStageSeconds float64        `json:"time_in_stage_seconds"`
}
