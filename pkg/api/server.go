// Package api exposes the authorization checks over HTTP. Every
// account-scoped endpoint resolves a policy context for the caller and
// runs the permission engines; no handler ever answers from anything
// other than a freshly resolved context.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/scmguard/scmguard/pkg/accounts"
	"github.com/scmguard/scmguard/pkg/audit"
	"github.com/scmguard/scmguard/pkg/authz"
	"github.com/scmguard/scmguard/pkg/middleware"
	"github.com/scmguard/scmguard/pkg/observability"
)

// DecisionReader lists recorded authorization decisions
type DecisionReader interface {
	RecentDecisions(ctx context.Context, accountID int64, limit int) ([]audit.DecisionEvent, error)
}

// AccountStore is the account lookup surface the server needs
type AccountStore interface {
	GetAccount(ctx context.Context, id int64) (*accounts.Account, error)
	GetAccountBySlug(ctx context.Context, provider, slug string) (*accounts.Account, error)
	AuthzAccount(ctx context.Context, id int64) (*authz.Account, error)
	GetUserWithRole(ctx context.Context, providerUserID, provider string, accountID int64) (*accounts.UserWithRole, error)
}

// RepositoryStore supplies repository grant inputs
type RepositoryStore interface {
	AccountRepositoryIDs(ctx context.Context, accountID int64) ([]authz.EntityID, error)
	ACLEntityIDs(ctx context.Context, accountID int64, providerUserID, provider string) (authz.ACLEntityIDs, error)
}

// TeamStore supplies team-membership grant inputs, both the teams
// themselves and the repositories reachable through them
type TeamStore interface {
	EntityIDsByTeamRole(ctx context.Context, accountID int64, providerUserID, provider string) (map[authz.Role][]authz.EntityID, error)
	RepositoryIDsByTeamRole(ctx context.Context, accountID int64, providerUserID, provider string) (map[authz.Role][]authz.EntityID, error)
}

// Server represents the authorization API server
type Server struct {
	router       *mux.Router
	logger       *observability.Logger
	metrics      *observability.Metrics
	resolver     *authz.Resolver
	accounts     AccountStore
	repositories RepositoryStore
	teams        TeamStore
	audit        audit.Recorder
	decisions    DecisionReader
}

// Options bundles the server's collaborators
type Options struct {
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Resolver     *authz.Resolver
	Accounts     AccountStore
	Repositories RepositoryStore
	Teams        TeamStore

	// Audit is optional; nil disables decision recording
	Audit audit.Recorder

	// Decisions is optional; nil disables the decision listing endpoint
	Decisions DecisionReader

	// RateLimiter is optional; nil disables rate limiting (tests)
	RateLimiter *middleware.RateLimiter
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		resolver:     opts.Resolver,
		accounts:     opts.Accounts,
		repositories: opts.Repositories,
		teams:        opts.Teams,
		audit:        opts.Audit,
		decisions:    opts.Decisions,
	}
	if s.audit == nil {
		s.audit = audit.NopRecorder{}
	}
	s.setupRoutes(opts.RateLimiter)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(limiter *middleware.RateLimiter) {
	s.router.Use(middleware.RequestID(s.logger))
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, routeTemplate))
	}
	s.router.Use(middleware.NewIdentityMiddleware(false).Handler)
	if limiter != nil {
		s.router.Use(limiter.Handler)
	}
	s.router.Use(middleware.NewAccountContextMiddleware(s.accounts).Handler)

	// Allowed-id listings
	s.router.HandleFunc("/v1/accounts/{account}/repositories", s.listAllowedRepositories).Methods("GET")
	s.router.HandleFunc("/v1/accounts/{account}/teams", s.listAllowedTeams).Methods("GET")

	// Point checks
	s.router.HandleFunc("/v1/accounts/{account}/check", s.checkPermission).Methods("POST")

	// Capability flags for UI gating
	s.router.HandleFunc("/v1/accounts/{account}/capabilities", s.listCapabilities).Methods("GET")

	// Decision trail, gated on account-level access
	if s.decisions != nil {
		s.router.HandleFunc("/v1/accounts/{account}/decisions", s.listDecisions).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routeTemplate returns the mux route template for metrics labels, so
// /v1/accounts/42/check and /v1/accounts/acme/check share a series.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return r.URL.Path
	}
	if tmpl, err := route.GetPathTemplate(); err == nil {
		return tmpl
	}
	return r.URL.Path
}
