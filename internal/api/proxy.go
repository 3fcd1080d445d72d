package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ShreyX24/Raptor-X-sub001/internal/gateway"
)

// Proxied SUT capability routes. Each handler decodes its payload,
// forwards through the gateway, and translates the error taxonomy:
// unknown device 404, offline 503, timeout 504, remote failure 502.

// handleScreenshot captures and returns the device's current screen.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	img, err := s.gateway.Screenshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write; connection may be closed
	w.Write(img)
}

// handleAction forwards a synthetic input action to the device.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var action gateway.InputAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.gateway.SendInput(r.Context(), chi.URLParam(r, "id"), action); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLaunch starts an application on the device.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req gateway.LaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.gateway.Launch(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processRequest names the process for check/kill operations.
type processRequest struct {
	Name string `json:"name"`
}

// handleCheckProcess reports whether a named process is running on the device.
func (s *Server) handleCheckProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	status, err := s.gateway.CheckProcess(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleKillProcess terminates a named process on the device.
func (s *Server) handleKillProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	if err := s.gateway.KillProcess(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDisplayModes returns the device's current and supported display modes.
func (s *Server) handleDisplayModes(w http.ResponseWriter, r *http.Request) {
	state, err := s.gateway.DisplayModes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleSetDisplayMode switches the device's display mode.
func (s *Server) handleSetDisplayMode(w http.ResponseWriter, r *http.Request) {
	var mode gateway.DisplayMode
	if err := json.NewDecoder(r.Body).Decode(&mode); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.gateway.SetDisplayMode(r.Context(), chi.URLParam(r, "id"), mode); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
