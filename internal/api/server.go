// Package api provides the HTTP REST API and WebSocket activity feed for the
// identity service.
//
// It exposes registration, login, token and account recovery flows, and the
// administrative surface over users, roles and permissions.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultStoreTimeout bounds store calls when no timeout is configured.
const defaultStoreTimeout = 5 * time.Second

// Telemetry receives rate-limit rejections for time-series storage.
// It is satisfied by *influxdb.Client.
type Telemetry interface {
	WriteRateLimited(route string)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	DB          *sql.DB // optional: reported by /health
	Accounts    *auth.Accounts
	Engine      *auth.Engine
	Checks      *auth.Checks
	AuditRepo   audit.Repository // optional: enables GET /audit
	AuditWriter *audit.Writer    // optional: records administrative changes
	Metrics     *Metrics         // optional: a private registry is created if nil
	Telemetry   Telemetry        // optional
	ExternalHub *Hub             // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for the identity service.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	db           *sql.DB
	accounts     *auth.Accounts
	engine       *auth.Engine
	checks       *auth.Checks
	auditRepo    audit.Repository
	auditWriter  *audit.Writer
	metrics      *Metrics
	telemetry    Telemetry
	limiter      *rateLimiter
	proxies      []netip.Prefix
	tickets      *ticketStore
	storeTimeout time.Duration
	version      string
	startTime    time.Time
	server       *http.Server
	hub          *Hub
	externalHub  bool               // true if hub was injected externally
	cancel       context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Accounts == nil {
		return nil, fmt.Errorf("account flows are required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("rbac engine is required")
	}
	if deps.Checks == nil {
		return nil, fmt.Errorf("uniqueness checks are required")
	}

	s := &Server{
		cfg:          deps.Config,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		db:           deps.DB,
		accounts:     deps.Accounts,
		engine:       deps.Engine,
		checks:       deps.Checks,
		auditRepo:    deps.AuditRepo,
		auditWriter:  deps.AuditWriter,
		metrics:      deps.Metrics,
		telemetry:    deps.Telemetry,
		tickets:      newTicketStore(),
		storeTimeout: deps.Security.StoreTimeout,
		version:      deps.Version,
		startTime:    time.Now(),
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = defaultStoreTimeout
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if deps.Security.RateLimit.Enabled {
		s.limiter = newRateLimiter(deps.Security.RateLimit.RequestsPerMinute, deps.Security.RateLimit.Burst)
	}
	proxies, err := config.ParseTrustedProxies(deps.Security.RateLimit.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	s.proxies = proxies

	// Use externally-provided hub if available (needed when the account
	// flows also publish activity to it).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(s.logger)
	}
	s.metrics.watch(s.hub, s.db)

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and the ticket and
// rate-limit cleanup loops, and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	go s.tickets.cleanLoop(srvCtx)
	if s.limiter != nil {
		go s.limiter.cleanLoop(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket and limiter cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// storeContext bounds a store call made on behalf of r.
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.storeTimeout)
}
