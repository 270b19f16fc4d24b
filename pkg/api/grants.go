package api

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/scmguard/scmguard/pkg/authz"
	"github.com/scmguard/scmguard/pkg/middleware"
)

// loadRepositoryGrants gathers the three grant sources for a
// repository-scoped check. The stores are independent, so the lookups
// run concurrently; any failure aborts the whole load because a check
// against partial grants could under- or over-authorize.
func (s *Server) loadRepositoryGrants(ctx context.Context, accountID int64, identity *middleware.Identity) (authz.Grants, error) {
	var grants authz.Grants

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := s.repositories.AccountRepositoryIDs(ctx, accountID)
		if err != nil {
			return fmt.Errorf("account repository ids: %w", err)
		}
		grants.AccountEntityIDs = ids
		return nil
	})
	g.Go(func() error {
		acl, err := s.repositories.ACLEntityIDs(ctx, accountID, identity.ProviderUserID, identity.Provider)
		if err != nil {
			return fmt.Errorf("acl grants: %w", err)
		}
		grants.ACL = acl
		return nil
	})
	g.Go(func() error {
		byRole, err := s.teams.RepositoryIDsByTeamRole(ctx, accountID, identity.ProviderUserID, identity.Provider)
		if err != nil {
			return fmt.Errorf("team repository ids: %w", err)
		}
		grants.TeamEntityIDs = byRole
		return nil
	})

	if err := g.Wait(); err != nil {
		return authz.Grants{}, err
	}
	return grants, nil
}

// loadTeamGrants gathers grant sources for a team-scoped check. Only the
// caller's memberships feed the team engine: account-role holders see
// the teams they belong to, so no account-wide id set is needed.
func (s *Server) loadTeamGrants(ctx context.Context, accountID int64, identity *middleware.Identity) (authz.Grants, error) {
	byRole, err := s.teams.EntityIDsByTeamRole(ctx, accountID, identity.ProviderUserID, identity.Provider)
	if err != nil {
		return authz.Grants{}, fmt.Errorf("team membership ids: %w", err)
	}
	return authz.Grants{TeamEntityIDs: byRole}, nil
}

// grantsFor picks the grant loader for the resource being checked.
// Resources without entity-level grants get empty inputs; the engines
// then authorize purely on the account role.
func (s *Server) grantsFor(ctx context.Context, resource authz.Resource, accountID int64, identity *middleware.Identity) (authz.Grants, error) {
	switch resource {
	case authz.ResourceRepositories:
		return s.loadRepositoryGrants(ctx, accountID, identity)
	case authz.ResourceTeams:
		return s.loadTeamGrants(ctx, accountID, identity)
	default:
		return authz.Grants{}, nil
	}
}
