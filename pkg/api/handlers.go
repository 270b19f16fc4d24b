package api

import (
	"fmt"
	"net/http"

	"github.com/scmguard/scmguard/pkg/audit"
	"github.com/scmguard/scmguard/pkg/authz"
	"github.com/scmguard/scmguard/pkg/contextkeys"
	"github.com/scmguard/scmguard/pkg/httputil"
	"github.com/scmguard/scmguard/pkg/middleware"
	"github.com/scmguard/scmguard/pkg/observability"
)

// allowedIDsResponse lists the entity ids the caller may touch
type allowedIDsResponse struct {
	Action authz.Action     `json:"action"`
	IDs    []authz.EntityID `json:"ids"`
}

// checkRequest is a point permission check
type checkRequest struct {
	Action   authz.Action     `json:"action"`
	Resource authz.Resource   `json:"resource"`
	IDs      []authz.EntityID `json:"ids,omitempty"`
}

// checkResponse reports a granted check; denials are HTTP 403
type checkResponse struct {
	Allowed bool             `json:"allowed"`
	IDs     []authz.EntityID `json:"ids,omitempty"`
}

// capabilitiesResponse lists resources the caller's account role reaches
type capabilitiesResponse struct {
	Action    authz.Action     `json:"action"`
	Resources []authz.Resource `json:"resources"`
}

// policyContext resolves the caller's policy context for one check. It
// is rebuilt per request; nothing authorization-relevant survives
// between requests except the policy row cache behind the resolver.
func (s *Server) policyContext(r *http.Request, action authz.Action, resources ...authz.Resource) (*authz.PolicyContext, error) {
	account := middleware.GetAccount(r)
	identity := middleware.GetIdentity(r)
	if account == nil || identity == nil {
		return nil, authz.ErrInvalidRequest
	}
	ctx := r.Context()

	authzAccount, err := s.accounts.AuthzAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", account.ID, err)
	}

	userRow, err := s.accounts.GetUserWithRole(ctx, identity.ProviderUserID, identity.Provider, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load user role: %w", err)
	}

	var grants authz.Grants
	if len(resources) == 1 {
		grants, err = s.grantsFor(ctx, resources[0], account.ID, identity)
		if err != nil {
			return nil, err
		}
	}

	return s.resolver.Resolve(ctx, authzAccount, userRow.Record(), grants, action, resources)
}

func parseAction(r *http.Request) (authz.Action, bool) {
	switch action := authz.Action(httputil.ParseQueryString(r, "action", string(authz.ActionRead))); action {
	case authz.ActionRead, authz.ActionWrite, authz.ActionDelete:
		return action, true
	default:
		return "", false
	}
}

// listAllowedRepositories handles GET /v1/accounts/{account}/repositories
func (s *Server) listAllowedRepositories(w http.ResponseWriter, r *http.Request) {
	action, ok := parseAction(r)
	if !ok {
		httputil.WriteBadRequest(w, "unknown action")
		return
	}
	candidates, err := httputil.ParseQueryEntityIDs(r, "ids")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	pc, err := s.policyContext(r, action, authz.ResourceRepositories)
	if err != nil {
		s.writeAuthzError(w, r, err)
		return
	}
	engine, err := authz.NewEngine(pc, action, authz.ResourceRepositories)
	if err != nil {
		s.writeAuthzError(w, r, err)
		return
	}

	ids := engine.AllowedIDs(candidates...)
	s.recordCheck(action, authz.ResourceRepositories, true)
	s.recordAllowed(authz.ResourceRepositories, len(ids))
	httputil.WriteSuccess(w, allowedIDsResponse{Action: action, IDs: emptyNotNil(ids)})
}

// listAllowedTeams handles GET /v1/accounts/{account}/teams
func (s *Server) listAllowedTeams(w http.ResponseWriter, r *http.Request) {
	action, ok := parseAction(r)
	if !ok {
		httputil.WriteBadRequest(w, "unknown action")
		return
	}
	candidates, err := httputil.ParseQueryEntityIDs(r, "ids")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	pc, err := s.policyContext(r, action, authz.ResourceTeams)
	if err != nil {
		s.writeAuthzError(w, r, err)
		return
	}
	engine, err := authz.NewTeamEngine(pc, action, authz.ResourceTeams)
	if err != nil {
		s.writeAuthzError(w, r, err)
		return
	}

	ids := engine.AllowedIDs(candidates...)
	s.recordCheck(action, authz.ResourceTeams, true)
	s.recordAllowed(authz.ResourceTeams, len(ids))
	httputil.WriteSuccess(w, allowedIDsResponse{Action: action, IDs: emptyNotNil(ids)})
}

// checkPermission handles POST /v1/accounts/{account}/check
func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Action == "" || req.Resource == "" {
		httputil.WriteBadRequest(w, "action and resource are required")
		return
	}

	pc, err := s.policyContext(r, req.Action, req.Resource)
	if err != nil {
		s.auditDecision(r, req, audit.OutcomeError, nil)
		s.writeAuthzError(w, r, err)
		return
	}

	ids, err := s.enforce(pc, req)
	if err != nil {
		outcome := audit.OutcomeError
		if authz.IsForbidden(err) {
			outcome = audit.OutcomeForbidden
		}
		s.auditDecision(r, req, outcome, nil)
		s.recordCheck(req.Action, req.Resource, false)
		s.writeAuthzError(w, r, err)
		return
	}

	s.auditDecision(r, req, audit.OutcomeAllowed, ids)
	s.recordCheck(req.Action, req.Resource, true)
	httputil.WriteSuccess(w, checkResponse{Allowed: true, IDs: ids})
}

// auditDecision records the outcome of a point check. The decision
// trail only covers the check endpoint; listing endpoints are reads,
// not decisions.
func (s *Server) auditDecision(r *http.Request, req checkRequest, outcome audit.Outcome, allowed []authz.EntityID) {
	account := middleware.GetAccount(r)
	identity := middleware.GetIdentity(r)
	if account == nil || identity == nil {
		return
	}
	s.audit.Record(r.Context(), &audit.DecisionEvent{
		AccountID:      account.ID,
		ProviderUserID: identity.ProviderUserID,
		Provider:       identity.Provider,
		Action:         req.Action,
		Resource:       req.Resource,
		Outcome:        outcome,
		RequestedIDs:   req.IDs,
		AllowedIDs:     allowed,
		RequestID:      contextkeys.GetRequestID(r.Context()),
	})
}

// listDecisions handles GET /v1/accounts/{account}/decisions. Reading
// the decision trail requires account-level read access.
func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	pc, err := s.policyContext(r, authz.ActionRead, authz.ResourceAccounts)
	if err != nil {
		s.writeAuthzError(w, r, err)
		return
	}
	engine, err := authz.NewEngine(pc, authz.ActionRead, authz.ResourceAccounts)
	if err != nil {
		s.writeAuthzError(w, r, err)
		return
	}
	if err := engine.Enforce(); err != nil {
		s.writeAuthzError(w, r, err)
		return
	}

	account := middleware.GetAccount(r)
	events, err := s.decisions.RecentDecisions(r.Context(), account.ID, 100)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if events == nil {
		events = []audit.DecisionEvent{}
	}
	httputil.WriteSuccess(w, events)
}

// enforce dispatches to the engine matching the checked resource.
// Repositories and teams carry entity-level grants; everything else is
// gated on the account role alone.
func (s *Server) enforce(pc *authz.PolicyContext, req checkRequest) ([]authz.EntityID, error) {
	switch req.Resource {
	case authz.ResourceRepositories:
		engine, err := authz.NewEngine(pc, req.Action, req.Resource)
		if err != nil {
			return nil, err
		}
		return engine.RepositoriesEnforce(req.IDs...)
	case authz.ResourceTeams:
		engine, err := authz.NewTeamEngine(pc, req.Action, req.Resource)
		if err != nil {
			return nil, err
		}
		return engine.TeamsEnforce(req.IDs...)
	default:
		engine, err := authz.NewEngine(pc, req.Action, req.Resource)
		if err != nil {
			return nil, err
		}
		return nil, engine.Enforce()
	}
}

// listCapabilities handles GET /v1/accounts/{account}/capabilities
func (s *Server) listCapabilities(w http.ResponseWriter, r *http.Request) {
	action, ok := parseAction(r)
	if !ok {
		httputil.WriteBadRequest(w, "unknown action")
		return
	}

	resources := []authz.Resource{
		authz.ResourceRepositories,
		authz.ResourceTeams,
		authz.ResourceAccounts,
		authz.ResourceSubscription,
		authz.ResourceAnalyses,
		authz.ResourceIntegrations,
	}

	pc, err := s.policyContext(r, action, resources...)
	if err != nil {
		s.writeAuthzError(w, r, err)
		return
	}
	engine, err := authz.NewEngine(pc, action, resources...)
	if err != nil {
		s.writeAuthzError(w, r, err)
		return
	}

	allowed := engine.AllowedResources()
	if allowed == nil {
		allowed = []authz.Resource{}
	}
	httputil.WriteSuccess(w, capabilitiesResponse{Action: action, Resources: allowed})
}

func (s *Server) writeAuthzError(w http.ResponseWriter, r *http.Request, err error) {
	if !authz.IsForbidden(err) {
		observability.FromContext(r.Context()).WithError(err).Warn("authorization check failed")
	}
	httputil.WriteAuthzError(w, err)
}

func (s *Server) recordCheck(action authz.Action, resource authz.Resource, allowed bool) {
	if s.metrics != nil {
		s.metrics.RecordAuthzCheck(string(action), string(resource), allowed)
	}
}

func (s *Server) recordAllowed(resource authz.Resource, count int) {
	if s.metrics != nil {
		s.metrics.RecordAllowedIDs(string(resource), count)
	}
}

func emptyNotNil(ids []authz.EntityID) []authz.EntityID {
	if ids == nil {
		return []authz.EntityID{}
	}
	return ids
}
