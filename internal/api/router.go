package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// healthCheckTimeout bounds the store ping made by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.authenticate)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

		// Account flows (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.With(s.rateLimit("login")).Post("/login", s.handleLogin)
			r.Post("/confirm-account", s.handleConfirmAccount)
			r.With(s.rateLimit("forgot_password")).Post("/forgot-password", s.handleForgotPassword)
			r.Post("/reset-password", s.handleResetPassword)
		})

		r.Route("/token", func(r chi.Router) {
			r.Post("/validate", s.handleValidateToken)
			r.Post("/refresh", s.handleRefreshToken)
			r.Post("/revoke", s.handleRevokeToken)
		})

		// Protected routes
		r.Route("/users", func(r chi.Router) {
			r.With(s.require(auth.Authenticated())).Get("/me", s.handleMe)
			r.With(s.require(auth.RequirePermission(auth.PermReadUsers))).Get("/", s.handleListUsers)

			r.Route("/{id}", func(r chi.Router) {
				r.With(s.require(auth.RequirePermission(auth.PermReadUser))).Get("/", s.handleGetUser)
				r.With(s.require(auth.RequirePermission(auth.PermReadUsers))).Get("/sessions", s.handleListUserSessions)
				r.With(s.require(auth.RequirePermission(auth.PermUpdateUser))).Put("/", s.handleUpdateUser)
				r.With(s.require(auth.RequireRole(auth.RoleSuperAdmin))).Delete("/", s.handleDeleteUser)
				r.With(s.require(auth.RequirePermission(auth.PermChangePassword))).Put("/password", s.handleChangePassword)
				r.With(s.require(auth.RequirePermission(auth.PermAssignPermission))).Put("/permissions", s.handleGrantUserPermissions)
				r.With(s.require(auth.RequirePermission(auth.PermRevokePermission))).Delete("/permissions", s.handleRevokeUserPermissions)
			})
		})

		r.With(s.require(auth.RequireRole(auth.RoleSuperAdmin))).Post("/admins", s.handleCreateAdmin)

		r.Route("/roles", func(r chi.Router) {
			r.With(s.require(auth.RequirePermission(auth.PermCreateRole))).Post("/", s.handleCreateRole)
			r.With(s.require(auth.RequirePermission(auth.PermReadRoles))).Get("/", s.handleListRoles)

			r.Route("/{id}", func(r chi.Router) {
				r.With(s.require(auth.RequirePermission(auth.PermReadRole))).Get("/", s.handleGetRole)
				r.With(s.require(auth.RequirePermission(auth.PermUpdateRole))).Put("/", s.handleUpdateRole)
				r.With(s.require(auth.RequirePermission(auth.PermDeleteRole))).Delete("/", s.handleDeleteRole)
				r.With(s.require(auth.RequirePermission(auth.PermAddPermission))).Put("/permissions", s.handleGrantRolePermissions)
				r.With(s.require(auth.RequirePermission(auth.PermRemovePermission))).Delete("/permissions", s.handleRevokeRolePermissions)
			})
		})

		r.Route("/permissions", func(r chi.Router) {
			r.Use(s.require(auth.RequireRole(auth.RoleSuperAdmin)))
			r.Get("/", s.handleListPermissions)
			r.Get("/{id}", s.handleGetPermission)
		})

		r.With(s.require(auth.RequirePermission(auth.PermReadAudit))).Get("/audit", s.handleListAuditLogs)

		r.Route("/activity", func(r chi.Router) {
			r.With(s.require(auth.RequireRole(auth.RoleSuperAdmin))).Post("/ticket", s.handleActivityTicket)
			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	store := "ok"

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("health check: store unreachable", "error", err)
			status, store = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"store":          store,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}
