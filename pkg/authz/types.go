package authz

// Resource represents a resource type as named in the remote policy table
type Resource string

const (
	ResourceRepositories Resource = "Repositories"
	ResourceTeams        Resource = "Teams"
	ResourceAccounts     Resource = "Accounts"
	ResourceSubscription Resource = "Subscription"
	ResourceAnalyses     Resource = "Analyses"
	ResourceIntegrations Resource = "Integrations"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Role is a role name as it appears in policy rows. Three disjoint
// categories share the namespace: account roles, ACL roles, and team roles.
type Role string

// Account-level roles. Exactly one is active per user per account.
const (
	RoleOwner            Role = "owner" // normalized to RoleAdmin everywhere except display
	RoleAdmin            Role = "admin"
	RoleManager          Role = "manager"
	RoleSecurityEngineer Role = "security_engineer"
	RoleDeveloper        Role = "developer" // default when no role record exists
)

// ACL roles, derived per-entity from access-control-list grants.
const (
	RoleACLRead  Role = "acl_read"
	RoleACLAdmin Role = "acl_admin"
)

// Team roles. A user may hold different team roles on different teams.
const (
	RoleTeamDeveloper        Role = "team_developer"
	RoleTeamSecurityEngineer Role = "team_security_engineer"
	RoleTeamAdmin            Role = "team_admin"
)

// AccountRoles returns the closed set of account-level role names
// recognized in policy rows. RoleOwner is excluded: it is an input alias
// that NormalizeAccountRole collapses to RoleAdmin before any matching.
func AccountRoles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleSecurityEngineer, RoleDeveloper}
}

// ACLRoles returns the closed set of ACL role names.
func ACLRoles() []Role {
	return []Role{RoleACLRead, RoleACLAdmin}
}

// TeamRoles returns the closed set of team role names.
func TeamRoles() []Role {
	return []Role{RoleTeamDeveloper, RoleTeamSecurityEngineer, RoleTeamAdmin}
}

// IsAccountRole reports whether name is a recognized account-level role.
// RoleOwner counts: policy rows never carry it, but raw user records may.
func IsAccountRole(name Role) bool {
	switch name {
	case RoleOwner, RoleAdmin, RoleManager, RoleSecurityEngineer, RoleDeveloper:
		return true
	}
	return false
}

// IsTeamRole reports whether name is a recognized team role.
func IsTeamRole(name Role) bool {
	switch name {
	case RoleTeamDeveloper, RoleTeamSecurityEngineer, RoleTeamAdmin:
		return true
	}
	return false
}

// NormalizeAccountRole collapses the owner alias and defaults unknown or
// absent role names to developer. This is the single place the owner→admin
// aliasing happens; downstream matching always sees the normalized name.
func NormalizeAccountRole(name Role) Role {
	switch name {
	case RoleOwner, RoleAdmin:
		return RoleAdmin
	case RoleManager:
		return RoleManager
	case RoleSecurityEngineer:
		return RoleSecurityEngineer
	default:
		return RoleDeveloper
	}
}

// PlanCode identifies a subscription plan in the remote policy table
type PlanCode string

const (
	PlanFree       PlanCode = "free"
	PlanPro        PlanCode = "pro"
	PlanEnterprise PlanCode = "enterprise"

	// PlanOnPremise is the fixed sentinel used by on-premise deployments,
	// which have no subscription records at all.
	PlanOnPremise PlanCode = "onpremise"
)

// EntityID identifies a repository or team, the unit entity-scoped
// enforcement resolves allow-lists over.
type EntityID int64

// PolicyRow is one externally-sourced policy table entry: a role that may
// perform the listed actions on a resource under the plan the row was
// fetched for. Rows are read-only to this engine.
type PolicyRow struct {
	Role     Role     `json:"role"`
	Resource Resource `json:"resource"`
	Actions  []Action `json:"actions"`
}

// HasAction reports whether the row includes the given action.
func (r PolicyRow) HasAction(action Action) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// ACLEntityIDs holds per-entity ACL grants split by tier. Read is defined
// as the union of read-tier and admin-tier grants (admin implies read);
// Admin is the admin-tier subset alone.
type ACLEntityIDs struct {
	Read  []EntityID `json:"read"`
	Admin []EntityID `json:"admin"`
}

// Account is the engine's view of an account: its id, the root account it
// bills through (if any), and the plan code resolved from its subscription.
// An empty PlanCode means plan resolution is incomplete and the policy
// fetch must be skipped (fail closed).
type Account struct {
	ID            int64    `json:"id"`
	RootAccountID *int64   `json:"root_account_id,omitempty"`
	PlanCode      PlanCode `json:"plan_code,omitempty"`
}

// UserRecord carries the identity and raw account role of the user being
// authorized. A nil UserRecord is valid and yields the developer default.
type UserRecord struct {
	ProviderUserID string `json:"provider_user_id"`
	Provider       string `json:"provider"`
	AccountRole    Role   `json:"account_role,omitempty"`
}

// Grants carries the pre-computed grant inputs for one check: the full id
// set owned by the account, the ACL tiers, and entity ids grouped by the
// team role the user holds on the granting team. The engine consumes these
// maps; it never computes ACL or team membership itself.
type Grants struct {
	AccountEntityIDs []EntityID
	ACL              ACLEntityIDs
	TeamEntityIDs    map[Role][]EntityID
}

// dedupeIDs removes duplicates preserving first-seen order.
func dedupeIDs(ids []EntityID) []EntityID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[EntityID]struct{}, len(ids))
	out := make([]EntityID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// intersectIDs returns the members of ids that appear in candidates,
// preserving the order of ids.
func intersectIDs(ids, candidates []EntityID) []EntityID {
	allowed := make(map[EntityID]struct{}, len(candidates))
	for _, id := range candidates {
		allowed[id] = struct{}{}
	}
	out := make([]EntityID, 0, len(ids))
	for _, id := range ids {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
