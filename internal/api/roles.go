package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// handleCreateRole creates a role with a unique name.
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.checks.Unique(ctx, auth.FieldRoleName, req.Name); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	role, err := s.engine.CreateRole(ctx, req.input())
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("role created", "role_id", role.ID, "name", role.Name)
	s.auditLog(r, actionCreate, audit.EntityRole, role.ID, map[string]any{"name": role.Name})

	writeJSON(w, http.StatusOK, role)
}

// handleListRoles returns every role with its permissions.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	roles, err := s.engine.ListRoles(ctx)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"roles": roles,
		"count": len(roles),
	})
}

// handleGetRole returns a single role.
func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	role, err := s.engine.GetRole(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, role)
}

// handleUpdateRole replaces a role's name, description and default flag.
func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	role, err := s.engine.UpdateRole(ctx, id, req.input())
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(r, actionUpdate, audit.EntityRole, id, map[string]any{"name": role.Name})

	writeJSON(w, http.StatusOK, role)
}

// handleDeleteRole removes a role that no user holds.
func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := s.engine.DeleteRole(ctx, id); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("role deleted", "role_id", id)
	s.auditLog(r, actionDelete, audit.EntityRole, id, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleGrantRolePermissions adds permissions to a role.
func (s *Server) handleGrantRolePermissions(w http.ResponseWriter, r *http.Request) {
	s.changeRolePermissions(w, r, actionGrant, s.engine.GrantRolePermissions)
}

// handleRevokeRolePermissions removes permissions from a role.
func (s *Server) handleRevokeRolePermissions(w http.ResponseWriter, r *http.Request) {
	s.changeRolePermissions(w, r, actionRevoke, s.engine.RevokeRolePermissions)
}

// rolePermissionChange is a grant or revoke on the engine.
type rolePermissionChange func(ctx context.Context, roleID string, names []string) (*auth.Role, error)

func (s *Server) changeRolePermissions(w http.ResponseWriter, r *http.Request, action string, apply rolePermissionChange) {
	var req permissionsRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.requirePermissions(ctx, req.Permissions); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	role, err := apply(ctx, id, req.Permissions)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("role permissions changed", "role_id", id, "action", action, "permissions", req.Permissions)
	s.auditLog(r, action, audit.EntityRole, id, map[string]any{"permissions": req.Permissions})

	writeJSON(w, http.StatusOK, role)
}
