package api

import (
	"net/http"

	"github.com/darmiel/entitled/internal/api/middleware"
	"github.com/darmiel/entitled/internal/audit"
	"github.com/darmiel/entitled/internal/core"
	"github.com/darmiel/entitled/internal/service"
)

type Server struct {
	entitlements *service.EntitlementService
	auditor      core.Auditor

	// onRequestHandled is invoked after every entitlement request when the
	// server runs in exit-after-request mode. Nil otherwise.
	onRequestHandled func()
}

type ServerOption func(*Server)

// WithRequestHandledHook installs a callback that fires after each handled
// entitlement request. Used to stop the server after a single request.
func WithRequestHandledHook(hook func()) ServerOption {
	return func(s *Server) {
		s.onRequestHandled = hook
	}
}

func NewServer(
	entitlements *service.EntitlementService,
	auditor core.Auditor,
	opts ...ServerOption,
) *Server {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}

	s := &Server{
		entitlements: entitlements,
		auditor:      auditor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes(adminSigningKey []byte) http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+VersionRoute, s.handleVersion)

	// entitlement routes
	mux.HandleFunc("POST "+EntitlementsRoute, s.handleEntitlements)
	mux.HandleFunc("POST "+RenewEntitlementRoute, s.handleRenew)
	mux.HandleFunc("DELETE "+ReleaseEntitlementRoute, s.handleRelease)

	// admin routes
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET "+ListEntitlementsRoute, s.handleAdminEntitlements)
	adminMux.HandleFunc("GET "+ListAuditsRoute, s.handleAdminAudits)
	mux.Handle(AdminParent, middleware.AdminAuth(adminSigningKey)(adminMux))

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(
				mux)))
}

func (s *Server) requestHandled() {
	if s.onRequestHandled != nil {
		s.onRequestHandled()
	}
}
