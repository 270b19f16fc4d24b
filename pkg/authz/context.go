package authz

// PolicyContext captures everything one authorization check needs once the
// remote fetches are done: the user's normalized account role, the plan the
// rows were fetched under, the fetched rows, and the three grant sources.
// It is immutable after construction and exposes read accessors only.
type PolicyContext struct {
	accountRole      Role
	plan             PlanCode
	rows             []PolicyRow
	accountEntityIDs []EntityID
	aclRead          []EntityID
	aclAdmin         []EntityID
	teamEntityIDs    map[Role][]EntityID
}

// NewPolicyContext builds an immutable PolicyContext. The account role is
// normalized exactly once here; the ACL read tier is widened to include the
// admin tier (admin implies read); team entity ids are kept only under
// recognized team role names.
func NewPolicyContext(accountRole Role, plan PlanCode, rows []PolicyRow, grants Grants) *PolicyContext {
	pc := &PolicyContext{
		accountRole:      NormalizeAccountRole(accountRole),
		plan:             plan,
		rows:             rows,
		accountEntityIDs: dedupeIDs(grants.AccountEntityIDs),
		aclAdmin:         dedupeIDs(grants.ACL.Admin),
	}

	read := make([]EntityID, 0, len(grants.ACL.Read)+len(grants.ACL.Admin))
	read = append(read, grants.ACL.Read...)
	read = append(read, grants.ACL.Admin...)
	pc.aclRead = dedupeIDs(read)

	if len(grants.TeamEntityIDs) > 0 {
		pc.teamEntityIDs = make(map[Role][]EntityID, len(grants.TeamEntityIDs))
		for role, ids := range grants.TeamEntityIDs {
			if !IsTeamRole(role) {
				continue
			}
			pc.teamEntityIDs[role] = dedupeIDs(ids)
		}
	}

	return pc
}

// AccountRole returns the user's normalized account-level role. Never
// empty: users without a role record default to developer.
func (pc *PolicyContext) AccountRole() Role {
	return pc.accountRole
}

// Plan returns the plan code the policy rows were fetched under.
func (pc *PolicyContext) Plan() PlanCode {
	return pc.plan
}

// Rows returns the fetched policy rows. Empty means fail closed.
func (pc *PolicyContext) Rows() []PolicyRow {
	return pc.rows
}

// AccountEntityIDs returns the full entity id set owned by the account.
// Only an entitled account role unlocks these.
func (pc *PolicyContext) AccountEntityIDs() []EntityID {
	return pc.accountEntityIDs
}

// ACLReadIDs returns the read-tier ACL grants, which by construction
// include every admin-tier grant.
func (pc *PolicyContext) ACLReadIDs() []EntityID {
	return pc.aclRead
}

// ACLAdminIDs returns the admin-tier ACL grants alone.
func (pc *PolicyContext) ACLAdminIDs() []EntityID {
	return pc.aclAdmin
}

// TeamEntityIDs returns the entity ids the user holds via the given team
// role. Ids appear only under roles the user actually holds.
func (pc *PolicyContext) TeamEntityIDs(role Role) []EntityID {
	return pc.teamEntityIDs[role]
}

// HeldTeamRoles returns the team roles the user holds, in the fixed
// TeamRoles order for determinism.
func (pc *PolicyContext) HeldTeamRoles() []Role {
	if len(pc.teamEntityIDs) == 0 {
		return nil
	}
	held := make([]Role, 0, len(pc.teamEntityIDs))
	for _, role := range TeamRoles() {
		if _, ok := pc.teamEntityIDs[role]; ok {
			held = append(held, role)
		}
	}
	return held
}
