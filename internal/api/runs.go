package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ShreyX24/Raptor-X-sub001/internal/audit"
	"github.com/ShreyX24/Raptor-X-sub001/internal/orchestrator"
)

// stopRequest is the optional payload for stop endpoints.
type stopRequest struct {
	// KillProcess terminates the workflow's target process after the
	// run reaches stopped. Default is to leave the game running.
	KillProcess bool `json:"kill_process"`
}

// decodeStopRequest tolerates an empty body: stopping without options is
// the common case.
func decodeStopRequest(r *http.Request) (stopRequest, error) {
	var req stopRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// handleSubmitRun enqueues one workflow run against one device.
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	run, err := s.scheduler.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionSubmit, audit.EntityRun, run.ID, map[string]any{
		"device_id": run.DeviceID,
		"workflow":  run.WorkflowName,
	})
	writeJSON(w, http.StatusCreated, run)
}

// handleListRuns lists all runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.scheduler.ListRuns(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns one run with its execution cursor.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.scheduler.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleStopRun requests cooperative cancellation of a run. A queued run
// stops immediately; a running one stops at its next suspension point.
func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStopRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.scheduler.Stop(r.Context(), id, req.KillProcess); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionStop, audit.EntityRun, id, map[string]any{
		"kill_process": req.KillProcess,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// handleRunLogs returns the run's step-level log, including every
// detection attempt and which fallback configuration succeeded.
func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.scheduler.GetLogs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

// handleSubmitCampaign enqueues a devices × workflows batch of runs.
func (s *Server) handleSubmitCampaign(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	campaign, err := s.scheduler.SubmitCampaign(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionSubmit, audit.EntityCampaign, campaign.ID, map[string]any{
		"name": campaign.Name,
		"runs": len(campaign.RunIDs),
	})
	writeJSON(w, http.StatusCreated, campaign)
}

// handleGetCampaign returns a campaign and its run IDs.
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.scheduler.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// handleStopCampaign stops every non-terminal run in the campaign.
func (s *Server) handleStopCampaign(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStopRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.scheduler.StopCampaign(r.Context(), id, req.KillProcess); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionStop, audit.EntityCampaign, id, map[string]any{
		"kill_process": req.KillProcess,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}
