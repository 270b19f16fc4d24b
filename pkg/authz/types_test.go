package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAccountRole(t *testing.T) {
	tests := []struct {
		name string
		in   Role
		want Role
	}{
		{"owner collapses to admin", RoleOwner, RoleAdmin},
		{"admin unchanged", RoleAdmin, RoleAdmin},
		{"manager unchanged", RoleManager, RoleManager},
		{"security engineer unchanged", RoleSecurityEngineer, RoleSecurityEngineer},
		{"developer unchanged", RoleDeveloper, RoleDeveloper},
		{"empty defaults to developer", Role(""), RoleDeveloper},
		{"unrecognized defaults to developer", Role("superuser"), RoleDeveloper},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAccountRole(tt.in))
		})
	}
}

func TestPolicyRow_HasAction(t *testing.T) {
	row := PolicyRow{Role: RoleAdmin, Resource: ResourceRepositories, Actions: []Action{ActionRead, ActionWrite}}

	assert.True(t, row.HasAction(ActionRead))
	assert.True(t, row.HasAction(ActionWrite))
	assert.False(t, row.HasAction(ActionDelete))
}

func TestPolicyContext_ACLReadIncludesAdminTier(t *testing.T) {
	pc := NewPolicyContext(RoleDeveloper, PlanFree, nil, Grants{
		ACL: ACLEntityIDs{Read: []EntityID{1, 2}, Admin: []EntityID{2, 3}},
	})

	assert.Equal(t, []EntityID{1, 2, 3}, pc.ACLReadIDs())
	assert.Equal(t, []EntityID{2, 3}, pc.ACLAdminIDs())
	assert.Subset(t, pc.ACLReadIDs(), pc.ACLAdminIDs())
}

func TestPolicyContext_DropsUnrecognizedTeamRoleKeys(t *testing.T) {
	pc := NewPolicyContext(RoleDeveloper, PlanFree, nil, Grants{
		TeamEntityIDs: map[Role][]EntityID{
			RoleTeamAdmin: {1},
			Role("admin"): {2}, // account role name, not a team role
		},
	})

	assert.Equal(t, []Role{RoleTeamAdmin}, pc.HeldTeamRoles())
	assert.Empty(t, pc.TeamEntityIDs(Role("admin")))
}

func TestPolicyContext_HeldTeamRolesDeterministicOrder(t *testing.T) {
	pc := NewPolicyContext(RoleDeveloper, PlanFree, nil, Grants{
		TeamEntityIDs: map[Role][]EntityID{
			RoleTeamAdmin:            {1},
			RoleTeamDeveloper:        {2},
			RoleTeamSecurityEngineer: {3},
		},
	})

	assert.Equal(t, []Role{RoleTeamDeveloper, RoleTeamSecurityEngineer, RoleTeamAdmin}, pc.HeldTeamRoles())
}

func TestDedupeIDs(t *testing.T) {
	assert.Nil(t, dedupeIDs(nil))
	assert.Equal(t, []EntityID{3, 1, 2}, dedupeIDs([]EntityID{3, 1, 3, 2, 1}))
}
