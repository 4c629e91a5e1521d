// Package httpapi implements the REST surface of the pipeline service.
//
// All mutating routes expect an x-actor-id header forwarded by the
// gateway after authentication; the service never sees credentials.
//
// Routes:
//
//	POST  /recruitments/jobs/                      → create job
//	GET   /recruitments/jobs/?status=open          → list jobs
//	POST  /recruitments/candidates/                → create candidate
//	GET   /recruitments/candidates/                → list candidates
//	POST  /recruitments/applications/              → create application
//	GET   /recruitments/applications/?status=…     → list applications
//	PATCH /recruitments/applications/{id}/status/  → transition stage
//	GET   /recruitments/applications/{id}/         → application + history + metrics
//	GET   /recruitments/auditlogs/                 → global audit trail
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"recruitment/pipeline-service/internal/pipeline"
	"recruitment/pipeline-service/pkg/logging"
)

// actorHeader carries the resolved actor identity from the auth gateway.
const actorHeader = "x-actor-id"

// ─── Request types ────────────────────────────────────────────────────────────

type createJobRequest struct {
	Title      string `json:"title" validate:"required"`
	Department string `json:"department"`
	Location   string `json:"location"`
	Status     string `json:"status" validate:"omitempty,oneof=open closed"`
	Openings   int    `json:"openings" validate:"omitempty,gte=1"`
}

type createCandidateRequest struct {
	FullName  string `json:"full_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	ResumeURL string `json:"resume_url" validate:"omitempty,url"`
}

type createApplicationRequest struct {
	Job       string `json:"job" validate:"required,uuid4"`
	Candidate string `json:"candidate" validate:"required,uuid4"`
	Score     int    `json:"score" validate:"gte=0,lte=100"`
}

type updateStatusRequest struct {
	Status       string `json:"status" validate:"required"`
	Note         string `json:"note"`
	RejectReason string `json:"reject_reason"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	svc      *pipeline.Service
	validate *validator.Validate
	log      *logging.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(svc *pipeline.Service, log *logging.Logger) *Handler {
	return &Handler{svc: svc, validate: validator.New(), log: log}
}

// RegisterRoutes mounts all pipeline-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /recruitments/jobs/{$}", h.createJob)
	mux.HandleFunc("GET /recruitments/jobs/{$}", h.listJobs)
	mux.HandleFunc("POST /recruitments/candidates/{$}", h.createCandidate)
	mux.HandleFunc("GET /recruitments/candidates/{$}", h.listCandidates)
	mux.HandleFunc("POST /recruitments/applications/{$}", h.createApplication)
	mux.HandleFunc("GET /recruitments/applications/{$}", h.listApplications)
	mux.HandleFunc("PATCH /recruitments/applications/{id}/status/{$}", h.updateStatus)
	mux.HandleFunc("GET /recruitments/applications/{id}/{$}", h.getApplication)
	mux.HandleFunc("GET /recruitments/auditlogs/{$}", h.listAudit)
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	var req createJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.svc.CreateJob(r.Context(), &pipeline.Job{
		Title:      req.Title,
		Department: req.Department,
		Location:   req.Location,
		Status:     pipeline.JobStatus(req.Status),
		Openings:   req.Openings,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ─── Candidates ──────────────────────────────────────────────────────────────

func (h *Handler) createCandidate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	var req createCandidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.svc.CreateCandidate(r.Context(), &pipeline.Candidate{
		FullName:  req.FullName,
		Email:     req.Email,
		ResumeURL: req.ResumeURL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) listCandidates(w http.ResponseWriter, r *http.Request) {
	cs, err := h.svc.ListCandidates(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// ─── Applications ────────────────────────────────────────────────────────────

func (h *Handler) createApplication(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	var req createApplicationRequest
	if !h.decode(w, r, &req) {
		return
	}

	jobID, _ := uuid.Parse(req.Job)
	candidateID, _ := uuid.Parse(req.Candidate)

	app, err := h.svc.CreateApplication(r.Context(), jobID, candidateID, req.Score)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.ListApplications(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	appID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	app, err := h.svc.UpdateStatus(r.Context(), appID, req.Status, actor, req.Note, req.RejectReason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.GetApplication(r.Context(), appID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ─── Audit trail ─────────────────────────────────────────────────────────────

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := pipeline.AuditFilter{
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
		Actor:      q.Get("actor"),
	}
	for name, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				h.writeError(w, &pipeline.ValidationError{
					Code: pipeline.CodeInvalidRequest,
					Msg:  name + " must be an RFC 3339 timestamp",
				})
				return
			}
			*dst = t
		}
	}

	entries, err := h.svc.ListAudit(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// requireActor extracts the authenticated actor identity set by the
// gateway. Mutating endpoints refuse requests without it.
func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(actorHeader)
	if actor == "" {
		writeErrorBody(w, http.StatusUnauthorized, "missing x-actor-id header", "unauthenticated")
		return "", false
	}
	return actor, true
}

// decode unmarshals and validates the request body, replying 400 on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid JSON body", pipeline.CodeInvalidRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeErrorBody(w, http.StatusBadRequest, err.Error(), pipeline.CodeInvalidRequest)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErrorBody(w, http.StatusNotFound, "invalid application id", "not_found")
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps the error taxonomy onto HTTP statuses: validation → 400,
// unknown record → 404, lost transition race → 409, anything else → 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *pipeline.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrorBody(w, http.StatusBadRequest, verr.Msg, verr.Code)
	case errors.Is(err, pipeline.ErrNotFound):
		writeErrorBody(w, http.StatusNotFound, "application not found", "not_found")
	case errors.Is(err, pipeline.ErrConflict):
		writeErrorBody(w, http.StatusConflict, "concurrent transition in progress, retry with current stage", "conflict")
	default:
		h.log.Error("request failed", "err", err)
		writeErrorBody(w, http.StatusInternalServerError, "internal error", "internal")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}
