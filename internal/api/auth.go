package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// handleRegister creates a self-service account and sends its
// confirmation token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
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

	user, err := s.accounts.Register(ctx, req.registration())
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("user registered", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

// handleLogin authenticates a user and returns a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	session, err := s.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// handleConfirmAccount consumes a confirmation token.
func (s *Server) handleConfirmAccount(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.accounts.ConfirmAccount(ctx, req.Token); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "account confirmed"})
}

// handleForgotPassword sends a password reset token to a known address.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.accounts.ForgotPassword(ctx, req.Email); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset link sent"})
}

// handleResetPassword consumes a reset token and stores the new password.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.accounts.ResetPassword(ctx, req.Token, req.Password); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset"})
}
