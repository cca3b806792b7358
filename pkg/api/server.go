package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/permcache/pkg/auth"
	"github.com/platinummonkey/permcache/pkg/httputil"
	"github.com/platinummonkey/permcache/pkg/middleware"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/platinummonkey/permcache/pkg/rbac"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds request bodies; role lists are small
const maxBodyBytes = 1 << 20

// PermissionPopulator is the write path used at login
type PermissionPopulator interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (rbac.Snapshot, error)
	Populate(ctx context.Context, snap rbac.Snapshot, roles []rbac.Role) error
}

// ChangePublisher announces that a user's permissions changed
type ChangePublisher interface {
	Publish(ctx context.Context, userID uuid.UUID) error
}

// Dependencies wires the server to the rest of the service. Health,
// Registry, Trust and Verifier are optional.
type Dependencies struct {
	Populator   PermissionPopulator
	Checker     rbac.Checker
	Publisher   ChangePublisher
	Interceptor *rbac.Interceptor

	Trust    *middleware.TrustPolicy
	Verifier *auth.TokenVerifier

	Health   *observability.HealthChecker
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Logger   logrus.FieldLogger
}

// Server represents the internal API server
type Server struct {
	router *mux.Router
	deps   Dependencies
	logger logrus.FieldLogger
}

// NewServer creates a new API server
func NewServer(deps Dependencies) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		logger: observability.OrNop(deps.Logger),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RecoveryMiddleware(s.logger),
		middleware.RequestID(s.logger),
		middleware.HTTPMetrics(s.deps.Metrics),
		httputil.LoggingMiddleware(s.logger),
	)
	if s.deps.Trust != nil {
		s.router.Use(
			middleware.StripUntrusted(s.deps.Trust, s.logger),
			middleware.GatewayIdentity(s.deps.Trust),
		)
	}

	if s.deps.Health != nil {
		observability.RegisterHealthRoutes(s.router, s.deps.Health)
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.deps.Registry)).Methods(http.MethodGet)
	}

	internal := s.router.PathPrefix("/internal/v1").Subrouter()
	internal.Use(
		httputil.MaxBytesMiddleware(maxBodyBytes),
		middleware.ServiceTokenAuth(s.deps.Verifier, s.logger),
	)

	handlers := NewPermissionHandlers(s.deps.Populator, s.deps.Checker, s.deps.Publisher)
	handlers.RegisterRoutes(internal)

	if s.deps.Interceptor != nil {
		NewProbeHandlers(s.deps.Interceptor).RegisterRoutes(internal)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
