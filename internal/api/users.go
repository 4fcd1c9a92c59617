package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// ─── Response Types ────────────────────────────────────────────────

// meResponse is the caller's account together with its effective permissions.
type meResponse struct {
	*auth.User
	EffectivePermissions []string `json:"effective_permissions"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleMe returns the authenticated caller.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	writeJSON(w, http.StatusOK, meResponse{
		User:                 p.User,
		EffectivePermissions: p.Permissions.Names(),
	})
}

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	users, err := s.accounts.ListUsers(ctx)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleGetUser returns a single user.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	user, err := s.accounts.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleListUserSessions returns the live refresh tokens of a user.
func (s *Server) handleListUserSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	sessions, err := s.accounts.Sessions(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleUpdateUser applies a partial update to a user's profile, state or role.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	user, err := s.accounts.UpdateUser(ctx, principal(r), id, req.update())
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	details := map[string]any{}
	if req.Enabled != nil {
		details["enabled"] = *req.Enabled
	}
	if req.Confirmed != nil {
		details["confirmed"] = *req.Confirmed
	}
	if req.Role != nil {
		details["role"] = *req.Role
	}
	s.logger.Info("user updated", "user_id", id, "updated_by", principal(r).User.ID)
	s.auditLog(r, actionUpdate, audit.EntityUser, id, details)

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := principal(r)

	if id == caller.User.ID {
		writeBadRequest(w, "cannot delete your own account")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.accounts.DeleteUser(ctx, id); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("user deleted", "user_id", id, "deleted_by", caller.User.ID)
	s.auditLog(r, actionDelete, audit.EntityUser, id, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleChangePassword changes a password after checking the current one.
// Callers may only change their own password unless they are super admins.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := principal(r)
	if id != caller.User.ID && !caller.HasRole(auth.RoleSuperAdmin) {
		writeForbidden(w, "cannot change another user's password")
		return
	}

	var req changePasswordRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.accounts.ChangePassword(ctx, id, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// handleGrantUserPermissions adds direct permissions to a user.
func (s *Server) handleGrantUserPermissions(w http.ResponseWriter, r *http.Request) {
	s.changeUserPermissions(w, r, actionGrant, s.engine.GrantUserPermissions)
}

// handleRevokeUserPermissions removes direct permissions from a user.
func (s *Server) handleRevokeUserPermissions(w http.ResponseWriter, r *http.Request) {
	s.changeUserPermissions(w, r, actionRevoke, s.engine.RevokeUserPermissions)
}

// userPermissionChange is a grant or revoke on the engine.
type userPermissionChange func(ctx context.Context, userID string, names []string) (*auth.User, error)

func (s *Server) changeUserPermissions(w http.ResponseWriter, r *http.Request, action string, apply userPermissionChange) {
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
	user, err := apply(ctx, id, req.Permissions)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("user permissions changed", "user_id", id, "action", action, "permissions", req.Permissions)
	s.auditLog(r, action, audit.EntityUser, id, map[string]any{"permissions": req.Permissions})

	writeJSON(w, http.StatusOK, user)
}

// handleCreateAdmin creates a confirmed administrator account.
func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.checks.Unique(ctx, auth.FieldUserEmail, req.Email); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	user, err := s.accounts.CreateAdmin(ctx, req.registration())
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("admin created", "user_id", user.ID, "created_by", principal(r).User.ID)
	s.auditLog(r, actionCreate, audit.EntityUser, user.ID, map[string]any{"role": auth.RoleAdmin})

	writeJSON(w, http.StatusOK, user)
}
