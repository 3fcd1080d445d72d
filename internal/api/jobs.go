package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ShreyX24/Raptor-X-sub001/internal/inference"
)

// jobRequest is the payload for POST /jobs. The image is base64-encoded;
// the config override is merged over server defaults. Wait turns the
// request synchronous: the response carries the completed job.
type jobRequest struct {
	Image  string              `json:"image"`
	Config *inference.Override `json:"config,omitempty"`
	Wait   bool                `json:"wait,omitempty"`
}

// handleSubmitJob enqueues a detection job.
//
// Asynchronous submissions return 202 with the job ID; the caller polls
// GET /jobs/{id}. With wait=true the handler blocks until the job
// completes (bounded by the configured job timeout) and returns the full
// result. A full queue maps to 429 so callers know to back off.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Image == "" {
		writeBadRequest(w, "image is required")
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeBadRequest(w, "image must be base64-encoded: "+err.Error())
		return
	}

	jobID, err := s.queue.Submit(r.Context(), image, req.Config)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": jobID,
			"status": string(inference.JobQueued),
		})
		return
	}

	if _, err := s.queue.Await(r.Context(), jobID, s.jobWait); err != nil {
		writeDomainError(w, err)
		return
	}

	job, err := s.queue.Get(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetJob returns a job snapshot: live jobs from the backlog,
// completed jobs from the bounded history ring.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleQueueStats returns aggregate queue counters and latency averages.
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

// handleQueueHealth returns per-backend health and load.
func (s *Server) handleQueueHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"backends": s.queue.Health(),
	})
}
