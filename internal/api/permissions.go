package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListPermissions returns the permission catalogue.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	perms, err := s.engine.ListPermissions(ctx)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": perms,
		"count":       len(perms),
	})
}

// handleGetPermission returns a single permission by ID.
func (s *Server) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	perm, err := s.engine.FindPermissionByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, perm)
}
