package api

import (
	"net/http"
)

// handleValidateToken reports whether a credential verifies, and why not.
// The failure reason is returned as the error code.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	subject, err := s.accounts.ValidateToken(req.Token)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "token is valid",
		"subject": subject,
	})
}

// handleRefreshToken exchanges a refresh token for a new credential.
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	session, err := s.accounts.Refresh(ctx, req.Token)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// handleRevokeToken deletes a refresh token so it can no longer be exchanged.
func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.accounts.Logout(ctx, req.Token); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
