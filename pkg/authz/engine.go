package authz

// MatchingRoleSet is the subset of the three role categories that are
// actually backed by fetched policy rows for the requested resource set
// and action. A role the user holds but that has no policy row grants
// nothing. Team matches are category-level: per-user filtering happens at
// id-resolution time, never here.
type MatchingRoleSet struct {
	User []Role
	Team []Role
	ACL  []Role
}

// Empty reports whether no role category matched at all.
func (m MatchingRoleSet) Empty() bool {
	return len(m.User) == 0 && len(m.Team) == 0 && len(m.ACL) == 0
}

// PermissionEngine answers entitlement questions for one resolved
// PolicyContext, action, and resource set. The matching-role set is
// computed once at construction; every operation after that is pure
// synchronous computation. Engines are single-use per request.
type PermissionEngine struct {
	policy    *PolicyContext
	action    Action
	resources []Resource
	matched   MatchingRoleSet
}

// NewEngine constructs a PermissionEngine from a resolved PolicyContext.
// A nil context means a required identifying parameter was missing
// upstream and yields ErrInvalidRequest.
func NewEngine(policy *PolicyContext, action Action, resources ...Resource) (*PermissionEngine, error) {
	if policy == nil {
		return nil, ErrInvalidRequest
	}
	e := &PermissionEngine{
		policy:    policy,
		action:    action,
		resources: resources,
	}
	e.matched = e.computeMatchingRoles()
	return e, nil
}

// computeMatchingRoles derives the matching-role set from the fetched
// policy rows. The user category holds at most the account role; team and
// ACL categories hold every category name present in the rows.
func (e *PermissionEngine) computeMatchingRoles() MatchingRoleSet {
	var m MatchingRoleSet
	if e.categoryMatches(e.policy.AccountRole()) {
		m.User = []Role{e.policy.AccountRole()}
	}
	for _, role := range TeamRoles() {
		if e.categoryMatches(role) {
			m.Team = append(m.Team, role)
		}
	}
	for _, role := range ACLRoles() {
		if e.categoryMatches(role) {
			m.ACL = append(m.ACL, role)
		}
	}
	return m
}

// categoryMatches reports whether some fetched row grants the role for the
// engine's action within its resource set.
func (e *PermissionEngine) categoryMatches(role Role) bool {
	for _, row := range e.policy.Rows() {
		if row.Role != role || !row.HasAction(e.action) {
			continue
		}
		if len(e.resources) == 0 || containsResource(e.resources, row.Resource) {
			return true
		}
	}
	return false
}

// MatchingRoles returns the computed matching-role set.
func (e *PermissionEngine) MatchingRoles() MatchingRoleSet {
	return e.matched
}

// Enforce is the all-or-nothing check for non-entity-scoped resources:
// it passes iff the account role itself is entitled. Team and ACL grants
// do not apply to account-wide operations.
func (e *PermissionEngine) Enforce() error {
	if len(e.matched.User) == 0 {
		return &ForbiddenError{Action: e.action, Resources: e.resources}
	}
	return nil
}

// RepositoriesEnforce is the entity-scoped check. With no candidates it
// returns everything the user is entitled to, which may legitimately be
// empty when the user is entitled to the concept but owns nothing yet.
// With candidates it returns the accessible subset and fails Forbidden
// when that subset is empty.
func (e *PermissionEngine) RepositoriesEnforce(candidates ...EntityID) ([]EntityID, error) {
	if e.matched.Empty() {
		return nil, &ForbiddenError{Action: e.action, Resources: e.resources}
	}

	allowed := e.AllowedIDs(candidates...)
	if len(candidates) > 0 && len(allowed) == 0 {
		return nil, &ForbiddenError{Action: e.action, Resources: e.resources}
	}
	return allowed, nil
}

// AllowedIDs resolves the entity-id allow-list: the union of the account's
// full id set (iff the account role matched), the matched ACL tiers, and
// the per-user ids of matched team-role categories, deduplicated in
// first-seen order. Candidates, when given, intersect the union.
func (e *PermissionEngine) AllowedIDs(candidates ...EntityID) []EntityID {
	var ids []EntityID

	if len(e.matched.User) > 0 {
		ids = append(ids, e.policy.AccountEntityIDs()...)
	}

	for _, role := range e.matched.ACL {
		if role == RoleACLAdmin {
			ids = append(ids, e.policy.ACLAdminIDs()...)
		} else {
			ids = append(ids, e.policy.ACLReadIDs()...)
		}
	}

	ids = append(ids, idsForMatchedTeamRoles(e.matched.Team, e.policy)...)

	ids = dedupeIDs(ids)
	if len(candidates) > 0 {
		ids = intersectIDs(ids, candidates)
	}
	return ids
}

// idsForMatchedTeamRoles is the second stage of team filtering: a matched
// category contributes only the ids the current user actually holds via
// that role. Collapsing this into the category match would wrongly grant
// every holder of any team role the ids of every matched category.
func idsForMatchedTeamRoles(matched []Role, policy *PolicyContext) []EntityID {
	var ids []EntityID
	for _, role := range matched {
		ids = append(ids, policy.TeamEntityIDs(role)...)
	}
	return ids
}

// AllowedResources returns the distinct resources for which some fetched
// row names a recognized account role. Team and ACL matches are ignored
// on purpose: this feeds account-role-only capability flags, while full
// entitlement for entity filtering goes through AllowedIDs.
func (e *PermissionEngine) AllowedResources() []Resource {
	var out []Resource
	seen := make(map[Resource]struct{})
	for _, row := range e.policy.Rows() {
		if !IsAccountRole(row.Role) {
			continue
		}
		if _, ok := seen[row.Resource]; ok {
			continue
		}
		seen[row.Resource] = struct{}{}
		out = append(out, row.Resource)
	}
	return out
}

func containsResource(resources []Resource, r Resource) bool {
	for _, res := range resources {
		if res == r {
			return true
		}
	}
	return false
}
