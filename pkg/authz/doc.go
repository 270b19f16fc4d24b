// Package authz implements the entitlement resolution engine for scmguard.
//
// # Overview
//
// Every authorization decision combines three independent grant sources:
// the user's account-level role, per-entity ACL grants, and team-role-scoped
// grants. Which of those sources count at all is defined by a remote policy
// table keyed by subscription plan, role, resource, and action.
//
// A check runs in two phases. A Resolver performs the remote fetches
// (root-account plan resolution plus the policy-row lookup) and produces an
// immutable PolicyContext. A PermissionEngine then computes, purely in
// memory, which role categories are backed by fetched policy rows and
// resolves the exact entity-id allow-list the caller may act on.
//
// # Usage Example
//
// Resolve and enforce a repository write:
//
//	policy, err := resolver.Resolve(ctx, account, user, grants,
//		authz.ActionWrite, []authz.Resource{authz.ResourceRepositories})
//	if err != nil {
//		return err
//	}
//	engine, err := authz.NewEngine(policy, authz.ActionWrite, authz.ResourceRepositories)
//	if err != nil {
//		return err
//	}
//	ids, err := engine.RepositoriesEnforce(requestedIDs...)
//
// # Failure Policy
//
// The engine fails closed: no matching policy row means Forbidden, never a
// default allow. Remote fetch failures propagate unchanged; there is no
// fallback policy source and no retry at this layer.
//
// # Related Packages
//
//   - pkg/policy: HTTP client and caching for the remote policy service
//   - pkg/repositories, pkg/teams: stores producing the grant inputs
package authz
