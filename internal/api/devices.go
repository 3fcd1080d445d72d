package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ShreyX24/Raptor-X-sub001/internal/audit"
	"github.com/ShreyX24/Raptor-X-sub001/internal/device"
)

// registerResponse is returned to agents on registration/heartbeat. The
// heartbeat interval hint lets paired devices report more often without
// agent-side configuration.
type registerResponse struct {
	Device            *device.Device `json:"device"`
	HeartbeatInterval int            `json:"heartbeat_interval"`
}

// handleRegisterDevice upserts a device from agent-supplied info. Agents
// call this both for first registration and for periodic heartbeats.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if !s.checkAgentKey(r) {
		writeUnauthorized(w, "invalid agent key")
		return
	}

	var info device.Info
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	// Heartbeats repeat every few seconds; only first-time registrations
	// are worth a trail entry.
	known := info.ID != "" && s.registry.Exists(info.ID)

	d, err := s.registry.RegisterOrHeartbeat(r.Context(), info)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !known {
		s.recordAudit(r, audit.ActionRegister, audit.EntityDevice, d.ID, map[string]any{
			"name": d.Name,
			"host": d.Host,
		})
	}

	interval := s.registryCfg.HeartbeatInterval
	if d.Paired && s.registryCfg.PairedHeartbeatInterval > 0 {
		interval = s.registryCfg.PairedHeartbeatInterval
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Device:            d,
		HeartbeatInterval: interval,
	})
}

// handleListDevices lists devices, optionally filtered by ?status= and ?paired=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	paired := r.URL.Query().Get("paired")

	var (
		devices []device.Device
		err     error
	)
	switch {
	case status != "":
		devices, err = s.registry.ListByStatus(r.Context(), device.Status(status))
	case paired == "true":
		devices, err = s.registry.ListPaired(r.Context())
	default:
		devices, err = s.registry.List(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Both filters may be combined; the coarser one ran above.
	if status != "" && paired != "" {
		want := paired == "true"
		filtered := devices[:0]
		for _, d := range devices {
			if d.Paired == want {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handlePairDevice marks a device as paired, making it eligible for runs.
func (s *Server) handlePairDevice(w http.ResponseWriter, r *http.Request) {
	s.setPaired(w, r, true, audit.ActionPair)
}

// handleUnpairDevice clears the device's paired flag. Pairing is operator
// bookkeeping only: queued and running work on the device is unaffected.
func (s *Server) handleUnpairDevice(w http.ResponseWriter, r *http.Request) {
	s.setPaired(w, r, false, audit.ActionUnpair)
}

func (s *Server) setPaired(w http.ResponseWriter, r *http.Request, paired bool, action string) {
	id := chi.URLParam(r, "id")
	if err := s.registry.SetPaired(r.Context(), id, paired); err != nil {
		writeDomainError(w, err)
		return
	}
	s.recordAudit(r, action, audit.EntityDevice, id, nil)

	d, err := s.registry.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
