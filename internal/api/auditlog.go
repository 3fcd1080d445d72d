package api

import (
	"net/http"
	"strconv"

	"github.com/ShreyX24/Raptor-X-sub001/internal/audit"
)

// recordAudit appends an entry to the audit trail. Failures are logged
// and never fail the request that triggered them.
func (s *Server) recordAudit(r *http.Request, action, entityType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}

	source := "operator"
	subject := subjectFrom(r.Context())
	if subject == "" {
		source = "agent"
	}

	e := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Subject:    subject,
		Source:     source,
		Details:    details,
	}
	if err := s.audit.Record(r.Context(), e); err != nil {
		s.logger.Warn("recording audit entry",
			"action", action,
			"entity", entityID,
			"error", err,
		)
	}
}

// handleAuditLog lists audit entries, filtered by ?action=, ?entity_type=,
// ?entity_id=, paginated with ?limit= and ?offset=.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid limit: "+v)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid offset: "+v)
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
