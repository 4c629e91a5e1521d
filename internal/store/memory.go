package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"recruitment/pipeline-service/internal/pipeline"
)

// Memory is an in-memory pipeline.Repository with the same concurrency
// contract as Postgres: the mutex plays the role of the partial unique
// index for creations, and transitions run the decision outside the
// lock against a snapshot, then commit under a version re-check — the
// analog of the WHERE version = $n guard. A writer whose snapshot went
// stale gets pipeline.ErrConflict. Used by tests and local tooling; not
// durable.
type Memory struct {
	mu sync.Mutex

	jobs       map[uuid.UUID]pipeline.Job
	candidates map[uuid.UUID]pipeline.Candidate
	apps       map[uuid.UUID]pipeline.Application
	history    []pipeline.StageHistory
	audit      []pipeline.AuditLog
	nextID     int64

	rules *pipeline.Rules

	// barrier, when set, runs between a transition's decision and its
	// commit, outside the lock. Tests install it to interleave writers
	// deterministically. Must be set before any concurrent use.
	barrier func()
}

var _ pipeline.Repository = (*Memory)(nil)

// NewMemory returns an empty in-memory repository. rules defines which
// stages count as active for the uniqueness guard.
func NewMemory(rules *pipeline.Rules) *Memory {
	return &Memory{
		jobs:       make(map[uuid.UUID]pipeline.Job),
		candidates: make(map[uuid.UUID]pipeline.Candidate),
		apps:       make(map[uuid.UUID]pipeline.Application),
		rules:      rules,
	}
}

// SetBarrier installs fn to run between a transition's decision and its
// commit. Passing nil removes it.
func (m *Memory) SetBarrier(fn func()) {
	m.barrier = fn
}

func (m *Memory) CreateJob(ctx context.Context, job *pipeline.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *Memory) ListJobs(ctx context.Context, statusFilter string) ([]pipeline.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]pipeline.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if statusFilter == "" || string(j.Status) == statusFilter {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs, nil
}

func (m *Memory) CreateCandidate(ctx context.Context, c *pipeline.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[c.ID] = *c
	return nil
}

func (m *Memory) ListCandidates(ctx context.Context) ([]pipeline.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs := make([]pipeline.Candidate, 0, len(m.candidates))
	for _, c := range m.candidates {
		cs = append(cs, c)
	}
	sort.Slice(cs, func(i, k int) bool { return cs[i].CreatedAt.After(cs[k].CreatedAt) })
	return cs, nil
}

func (m *Memory) CreateApplication(ctx context.Context, app *pipeline.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The analog of the foreign keys on applications.
	if _, ok := m.jobs[app.Job]; !ok {
		return &pipeline.ValidationError{
			Code: pipeline.CodeUnknownReference,
			Msg:  "job or candidate does not exist",
		}
	}
	if _, ok := m.candidates[app.Candidate]; !ok {
		return &pipeline.ValidationError{
			Code: pipeline.CodeUnknownReference,
			Msg:  "job or candidate does not exist",
		}
	}

	// Uniqueness guard: check-and-insert under one lock, the analog of
	// the partial unique index.
	for _, existing := range m.apps {
		if existing.Candidate == app.Candidate && existing.Job == app.Job &&
			existing.IsActive(m.rules) {
			return &pipeline.ValidationError{
				Code: pipeline.CodeDuplicateApplication,
				Msg:  "candidate already has an active application for this job",
			}
		}
	}
	m.apps[app.ID] = *app
	return nil
}

func (m *Memory) ListApplications(ctx context.Context, statusFilter string) ([]pipeline.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apps := make([]pipeline.Application, 0, len(m.apps))
	for _, a := range m.apps {
		if statusFilter == "" || string(a.Status) == statusFilter {
			apps = append(apps, a)
		}
	}
	sort.Slice(apps, func(i, k int) bool { return apps[i].AppliedAt.After(apps[k].AppliedAt) })
	return apps, nil
}

func (m *Memory) GetApplication(ctx context.Context, id uuid.UUID) (*pipeline.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	return &app, nil
}

func (m *Memory) Transition(ctx context.Context, id uuid.UUID, decide pipeline.DecideFunc) (*pipeline.Application, error) {
	m.mu.Lock()
	snapshot, ok := m.apps[id]
	m.mu.Unlock()
	if !ok {
		return nil, pipeline.ErrNotFound
	}

	change, err := decide(&snapshot)
	if err != nil {
		return nil, err
	}

	if m.barrier != nil {
		m.barrier()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	if app.Version != snapshot.Version {
		// Another transition committed between our read and write.
		return nil, pipeline.ErrConflict
	}

	now := time.Now().UTC()
	app.Status = change.To
	app.LastTransitionAt = now
	app.Version++
	if change.RejectReason != "" {
		reason := change.RejectReason
		app.RejectReason = &reason
	}
	if pipeline.IsHired(change.To) {
		hiredAt := now
		app.HiredAt = &hiredAt
	}
	m.apps[id] = app

	m.nextID++
	m.history = append(m.history, pipeline.StageHistory{
		ID:            m.nextID,
		ApplicationID: id,
		FromStage:     snapshot.Status,
		ToStage:       change.To,
		Note:          change.Note,
		EnteredAt:     now,
	})

	data, _ := json.Marshal(map[string]any{
		"old_status":    snapshot.Status,
		"new_status":    change.To,
		"note":          change.Note,
		"reject_reason": change.RejectReason,
	})
	m.nextID++
	m.audit = append(m.audit, pipeline.AuditLog{
		ID:         m.nextID,
		Actor:      change.Actor,
		Verb:       pipeline.VerbStatusChanged,
		TargetType: "Application",
		TargetID:   id.String(),
		Data:       data,
		CreatedAt:  now,
	})

	result := app
	return &result, nil
}

func (m *Memory) ListHistory(ctx context.Context, appID uuid.UUID) ([]pipeline.StageHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]pipeline.StageHistory, 0)
	for _, h := range m.history {
		if h.ApplicationID == appID {
			entries = append(entries, h)
		}
	}
	return entries, nil
}

func (m *Memory) ListAudit(ctx context.Context, f pipeline.AuditFilter) ([]pipeline.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]pipeline.AuditLog, 0)
	for _, e := range m.audit {
		if f.TargetType != "" && e.TargetType != f.TargetType {
			continue
		}
		if f.TargetID != "" && e.TargetID != f.TargetID {
			continue
		}
		if f.Actor != "" && e.Actor != f.Actor {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, k int) bool { return entries[i].ID > entries[k].ID })
	return entries, nil
}
