package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRepoRow(role Role) PolicyRow {
	return PolicyRow{Role: role, Resource: ResourceRepositories, Actions: []Action{ActionWrite}}
}

func repoContext(accountRole Role, rows []PolicyRow, grants Grants) *PolicyContext {
	return NewPolicyContext(accountRole, PlanPro, rows, grants)
}

func TestNewEngine_NilContext(t *testing.T) {
	engine, err := NewEngine(nil, ActionWrite, ResourceRepositories)
	assert.Nil(t, engine)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEnforce_FailsClosedWithNoPolicyRows(t *testing.T) {
	policy := repoContext(RoleAdmin, nil, Grants{
		AccountEntityIDs: []EntityID{1, 2, 3},
		ACL:              ACLEntityIDs{Read: []EntityID{4}, Admin: []EntityID{4}},
		TeamEntityIDs:    map[Role][]EntityID{RoleTeamAdmin: {5}},
	})

	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	assert.True(t, IsForbidden(engine.Enforce()))

	_, err = engine.RepositoriesEnforce()
	assert.True(t, IsForbidden(err))

	_, err = engine.RepositoriesEnforce(1, 2)
	assert.True(t, IsForbidden(err))
}

func TestEnforce_AccountRoleOnly(t *testing.T) {
	// Enforce considers only the account role, even when team and ACL
	// categories match.
	rows := []PolicyRow{writeRepoRow(RoleACLAdmin), writeRepoRow(RoleTeamAdmin)}
	policy := repoContext(RoleDeveloper, rows, Grants{})

	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	assert.True(t, IsForbidden(engine.Enforce()))

	rows = append(rows, writeRepoRow(RoleDeveloper))
	engine, err = NewEngine(repoContext(RoleDeveloper, rows, Grants{}), ActionWrite, ResourceRepositories)
	require.NoError(t, err)
	assert.NoError(t, engine.Enforce())
}

func TestAllowedIDs_AccountRoleGrantsEverythingOwned(t *testing.T) {
	policy := repoContext(RoleAdmin, []PolicyRow{writeRepoRow(RoleAdmin)}, Grants{
		AccountEntityIDs: []EntityID{10, 11, 12},
		ACL:              ACLEntityIDs{Read: []EntityID{99}},
		TeamEntityIDs:    map[Role][]EntityID{RoleTeamDeveloper: {98}},
	})

	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	// ACL and team content is present in the context but has no matching
	// rows, so only the account id set comes back.
	assert.Equal(t, []EntityID{10, 11, 12}, engine.AllowedIDs())
}

func TestAllowedIDs_ACLAdminImpliesRead(t *testing.T) {
	grants := Grants{ACL: ACLEntityIDs{Read: []EntityID{1, 2}, Admin: []EntityID{3}}}

	// Only acl_read matches: admin-tier ids surface through the read tier.
	engine, err := NewEngine(repoContext(RoleDeveloper, []PolicyRow{writeRepoRow(RoleACLRead)}, grants),
		ActionWrite, ResourceRepositories)
	require.NoError(t, err)
	assert.Equal(t, []EntityID{1, 2, 3}, engine.AllowedIDs())

	// Only acl_admin matches: the admin tier alone.
	engine, err = NewEngine(repoContext(RoleDeveloper, []PolicyRow{writeRepoRow(RoleACLAdmin)}, grants),
		ActionWrite, ResourceRepositories)
	require.NoError(t, err)
	assert.Equal(t, []EntityID{3}, engine.AllowedIDs())
}

func TestAllowedIDs_TeamCategoryVersusInstanceFiltering(t *testing.T) {
	// team_admin matches at the policy level, but the user only holds
	// team_developer: the matched category contributes nothing.
	policy := repoContext(RoleDeveloper, []PolicyRow{writeRepoRow(RoleTeamAdmin)}, Grants{
		TeamEntityIDs: map[Role][]EntityID{RoleTeamDeveloper: {7, 8}},
	})

	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	assert.Equal(t, []Role{RoleTeamAdmin}, engine.MatchingRoles().Team)
	assert.Empty(t, engine.AllowedIDs())

	// The category match still counts as a grant source, so enforcement
	// without candidates does not throw.
	ids, err := engine.RepositoriesEnforce()
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAllowedIDs_CandidateIntersection(t *testing.T) {
	policy := repoContext(RoleAdmin, []PolicyRow{writeRepoRow(RoleAdmin)}, Grants{
		AccountEntityIDs: []EntityID{1, 2, 3, 4},
	})

	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	full := engine.AllowedIDs()
	got := engine.AllowedIDs(4, 2, 99)

	assert.Equal(t, []EntityID{2, 4}, got)
	assert.Subset(t, full, got)

	seen := make(map[EntityID]int)
	for _, id := range got {
		seen[id]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %d appears more than once", id)
	}
}

func TestAllowedIDs_UnionDedupesFirstSeen(t *testing.T) {
	rows := []PolicyRow{writeRepoRow(RoleAdmin), writeRepoRow(RoleACLAdmin), writeRepoRow(RoleTeamAdmin)}
	policy := repoContext(RoleAdmin, rows, Grants{
		AccountEntityIDs: []EntityID{1, 2},
		ACL:              ACLEntityIDs{Admin: []EntityID{2, 3}},
		TeamEntityIDs:    map[Role][]EntityID{RoleTeamAdmin: {3, 4}},
	})

	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	assert.Equal(t, []EntityID{1, 2, 3, 4}, engine.AllowedIDs())
}

func TestRepositoriesEnforce_CandidateContract(t *testing.T) {
	policy := repoContext(RoleAdmin, []PolicyRow{writeRepoRow(RoleAdmin)}, Grants{
		AccountEntityIDs: []EntityID{1, 2},
	})

	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	ids, err := engine.RepositoriesEnforce(1)
	assert.NoError(t, err)
	assert.Equal(t, []EntityID{1}, ids)

	// A candidate outside the allow-list is Forbidden.
	_, err = engine.RepositoriesEnforce(99)
	assert.True(t, IsForbidden(err))
}

func TestRepositoriesEnforce_MixedGrantScenario(t *testing.T) {
	// Account role developer has no matching row; acl_admin grants id 1 and
	// team_admin grants ids 9 and 10.
	rows := []PolicyRow{writeRepoRow(RoleACLAdmin), writeRepoRow(RoleTeamAdmin)}
	policy := repoContext(RoleDeveloper, rows, Grants{
		AccountEntityIDs: []EntityID{1, 2, 3, 9, 10},
		ACL:              ACLEntityIDs{Admin: []EntityID{1}},
		TeamEntityIDs:    map[Role][]EntityID{RoleTeamAdmin: {9, 10}},
	})

	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	ids, err := engine.RepositoriesEnforce()
	require.NoError(t, err)
	assert.Equal(t, []EntityID{1, 9, 10}, ids)

	ids, err = engine.RepositoriesEnforce(1)
	require.NoError(t, err)
	assert.Equal(t, []EntityID{1}, ids)

	_, err = engine.RepositoriesEnforce(99)
	assert.True(t, IsForbidden(err))
}

func TestOwnerNormalization(t *testing.T) {
	grants := Grants{AccountEntityIDs: []EntityID{5, 6}}
	rows := []PolicyRow{writeRepoRow(RoleAdmin)}

	asOwner, err := NewEngine(repoContext(RoleOwner, rows, grants), ActionWrite, ResourceRepositories)
	require.NoError(t, err)
	asAdmin, err := NewEngine(repoContext(RoleAdmin, rows, grants), ActionWrite, ResourceRepositories)
	require.NoError(t, err)

	assert.Equal(t, asAdmin.MatchingRoles(), asOwner.MatchingRoles())
	assert.Equal(t, asAdmin.AllowedIDs(), asOwner.AllowedIDs())
	assert.Equal(t, asAdmin.Enforce(), asOwner.Enforce())
}

func TestMatchingRoles_ActionAndResourceFiltering(t *testing.T) {
	rows := []PolicyRow{
		{Role: RoleAdmin, Resource: ResourceRepositories, Actions: []Action{ActionRead}},
		{Role: RoleACLRead, Resource: ResourceTeams, Actions: []Action{ActionWrite}},
	}
	policy := repoContext(RoleAdmin, rows, Grants{AccountEntityIDs: []EntityID{1}})

	// The admin row covers read, not write; the acl_read row covers a
	// resource outside the engine's set.
	engine, err := NewEngine(policy, ActionWrite, ResourceRepositories)
	require.NoError(t, err)
	assert.True(t, engine.MatchingRoles().Empty())

	engine, err = NewEngine(policy, ActionRead, ResourceRepositories)
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleAdmin}, engine.MatchingRoles().User)
}

func TestAllowedResources_AccountRoleScopedOnly(t *testing.T) {
	// Pinned behavior: capability reporting ignores team and ACL matches
	// even though entity filtering folds all three sources together.
	rows := []PolicyRow{
		{Role: RoleAdmin, Resource: ResourceAccounts, Actions: []Action{ActionWrite}},
		{Role: RoleManager, Resource: ResourceTeams, Actions: []Action{ActionWrite}},
		{Role: RoleACLAdmin, Resource: ResourceRepositories, Actions: []Action{ActionWrite}},
		{Role: RoleTeamAdmin, Resource: ResourceSubscription, Actions: []Action{ActionWrite}},
		{Role: RoleAdmin, Resource: ResourceAccounts, Actions: []Action{ActionRead}},
	}
	policy := repoContext(RoleDeveloper, rows, Grants{})

	engine, err := NewEngine(policy, ActionWrite)
	require.NoError(t, err)

	assert.Equal(t, []Resource{ResourceAccounts, ResourceTeams}, engine.AllowedResources())
}
