package authz

// TeamPermissionEngine specializes PermissionEngine for team entities.
// Teams have a narrower grant model: only the account role and the
// team_admin role can act on team ids, and ACL grants do not apply to
// teams at all.
type TeamPermissionEngine struct {
	*PermissionEngine
}

// NewTeamEngine constructs a TeamPermissionEngine from a resolved
// PolicyContext.
func NewTeamEngine(policy *PolicyContext, action Action, resources ...Resource) (*TeamPermissionEngine, error) {
	base, err := NewEngine(policy, action, resources...)
	if err != nil {
		return nil, err
	}
	return &TeamPermissionEngine{PermissionEngine: base}, nil
}

// hasTeamGrant reports whether any team-qualifying grant source matched.
func (e *TeamPermissionEngine) hasTeamGrant() bool {
	if len(e.matched.User) > 0 {
		return true
	}
	for _, role := range e.matched.Team {
		if role == RoleTeamAdmin {
			return true
		}
	}
	return false
}

// TeamsEnforce is the entity-scoped check for teams. The entitlement gate
// admits only an account-role match or a team_admin category match; the
// candidate-id contract is the same as RepositoriesEnforce.
func (e *TeamPermissionEngine) TeamsEnforce(candidates ...EntityID) ([]EntityID, error) {
	if !e.hasTeamGrant() {
		return nil, &ForbiddenError{Action: e.action, Resources: e.resources}
	}

	allowed := e.AllowedIDs(candidates...)
	if len(candidates) > 0 && len(allowed) == 0 {
		return nil, &ForbiddenError{Action: e.action, Resources: e.resources}
	}
	return allowed, nil
}

// AllowedIDs shadows the base resolution with team semantics: an entitled
// account role sees every team the user belongs to regardless of which
// team role they hold on each, a matched team_admin category contributes
// the teams administered by the user, and ACL contributes nothing.
func (e *TeamPermissionEngine) AllowedIDs(candidates ...EntityID) []EntityID {
	var ids []EntityID

	if len(e.matched.User) > 0 {
		for _, role := range e.policy.HeldTeamRoles() {
			ids = append(ids, e.policy.TeamEntityIDs(role)...)
		}
	}
	for _, role := range e.matched.Team {
		if role == RoleTeamAdmin {
			ids = append(ids, e.policy.TeamEntityIDs(RoleTeamAdmin)...)
		}
	}

	ids = dedupeIDs(ids)
	if len(candidates) > 0 {
		ids = intersectIDs(ids, candidates)
	}
	return ids
}
