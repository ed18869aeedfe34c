package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/runs"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// JobResponse is the client view of a background job.
type JobResponse struct {
	JobID       string              `json:"job_id"`
	Kind        types.JobKind       `json:"kind"`
	Mode        types.Mode          `json:"mode,omitempty"`
	Status      string              `json:"status"`
	Stage       string              `json:"stage,omitempty"`
	ErrorKind   string              `json:"error_kind,omitempty"`
	Error       string              `json:"error,omitempty"`
	ResServerID string              `json:"resServerId,omitempty"`
	Stages      []types.StageRecord `json:"stages,omitempty"`
	Result      *types.RunResult    `json:"result,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

func newJobResponse(job *types.Job) JobResponse {
	resp := JobResponse{
		JobID:       job.ID.String(),
		Kind:        job.Kind,
		Mode:        job.Mode,
		Status:      job.StatusString(),
		Stage:       job.Stage,
		ErrorKind:   job.ErrorKind,
		Error:       job.ErrorMessage,
		ResServerID: job.ResServerID,
		Stages:      job.Stages,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Status == types.JobStatusSucceeded {
		resp.Result = job.Result
	}
	return resp
}

// handleSubmitRun validates a run and starts it as a job
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	req := runs.NewRunRequest()
	if !s.decode(w, r, req) {
		return
	}
	job, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, newJobResponse(job))
}

// handleRestoreRun re-runs post-processing of an earlier result session as a job
func (s *Server) handleRestoreRun(w http.ResponseWriter, r *http.Request) {
	var req runs.RestoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.svc.Restore(r.Context(), &req)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, newJobResponse(job))
}

// handleListJobs returns recent jobs, newest first
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.errorResponse(w, r, &ErrValidation{Field: "limit", Message: "must be between 1 and 500"})
			return
		}
		limit = n
	}
	manager := s.svc.Jobs()
	if manager == nil {
		s.jsonResponse(w, http.StatusOK, []JobResponse{})
		return
	}
	list, err := manager.List(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	out := make([]JobResponse, len(list))
	for i, job := range list {
		out[i] = newJobResponse(job)
	}
	s.jsonResponse(w, http.StatusOK, out)
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, r, &ErrValidation{Field: "id", Message: "invalid job id"})
		return uuid.Nil, false
	}
	return id, true
}

// handleGetJob returns job status and, once succeeded, its result
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.svc.Job(r.Context(), id)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newJobResponse(job))
}

// handleCancelJob cancels a pending or running job
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	manager := s.svc.Jobs()
	if manager == nil {
		s.errorResponse(w, r, failure.NotFoundf("job %s not found", id))
		return
	}
	job, err := manager.Cancel(r.Context(), id)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newJobResponse(job))
}

// handleJobEvents streams job snapshots via SSE until the job ends
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	manager := s.svc.Jobs()
	if manager == nil {
		s.errorResponse(w, r, failure.NotFoundf("job %s not found", id))
		return
	}

	// Subscribe before reading the snapshot so no transition is missed.
	updates, unsubscribe := manager.Subscribe(id)
	defer unsubscribe()

	job, err := manager.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	last := job
	if err := sse.WriteEvent("job", newJobResponse(job)); err != nil {
		return
	}
	for !last.Status.Terminal() {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-updates:
			if !open {
				latest, err := manager.Get(r.Context(), id)
				if err != nil {
					sse.WriteError(err.Error())
					return
				}
				last = latest
				if err := sse.WriteEvent("job", newJobResponse(last)); err != nil {
					return
				}
				if !last.Status.Terminal() {
					sse.WriteError("job updates ended before the job finished")
					return
				}
				continue
			}
			last = snap
			if err := sse.WriteEvent("job", newJobResponse(snap)); err != nil {
				log.Warnf(r.Context(), "error writing SSE event: %v", err)
				return
			}
		}
	}
	sse.WriteComplete(id.String(), last.StatusString())
}
