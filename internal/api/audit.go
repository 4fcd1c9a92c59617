package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
)

// Audit actions recorded by the administrative handlers.
const (
	actionCreate = "create"
	actionUpdate = "update"
	actionDelete = "delete"
	actionGrant  = "grant"
	actionRevoke = "revoke"
)

// auditLog enqueues an audit entry for the caller of r (best-effort).
func (s *Server) auditLog(r *http.Request, action, entityType, entityID string, details map[string]any) {
	if s.auditWriter == nil {
		return
	}

	var actor string
	if p := principal(r); p != nil {
		actor = p.User.ID
	}

	s.auditWriter.Log(&audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     actor,
		Source:     audit.SourceAPI,
		Details:    details,
	})
}

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - action: filter by action (create, update, delete, grant, revoke, login, ...)
//   - entity_type: filter by entity type (account, user, role)
//   - entity_id: filter by specific entity ID
//   - user_id: filter by actor
//   - since: RFC3339 lower bound on created_at
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = t
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	result, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
