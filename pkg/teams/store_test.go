package teams

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmguard/scmguard/pkg/authz"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestGetTeam(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, account_id, name, slug, created_at, updated_at")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "name", "slug", "created_at", "updated_at"}).
			AddRow(9, 7, "AppSec", "appsec", now, now))

	team, err := store.GetTeam(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, authz.EntityID(9), team.ID)
	assert.Equal(t, "appsec", team.Slug)
}

func TestGetTeamNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, account_id, name, slug, created_at, updated_at")).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetTeam(context.Background(), 404)
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestAddMemberRejectsAccountRole(t *testing.T) {
	store, _ := newMockStore(t)

	err := store.AddMember(context.Background(), &Membership{
		TeamID:         9,
		ProviderUserID: "u-1",
		Provider:       "github",
		Role:           authz.RoleAdmin,
	})
	assert.ErrorIs(t, err, ErrInvalidTeamRole)
}

func TestAddMemberUpsert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO team_members")).
		WithArgs(int64(9), "u-1", "github", authz.RoleTeamAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"added_at"}).AddRow(now))

	m := &Membership{
		TeamID:         9,
		ProviderUserID: "u-1",
		Provider:       "github",
		Role:           authz.RoleTeamAdmin,
	}
	require.NoError(t, store.AddMember(context.Background(), m))
	assert.Equal(t, now, m.AddedAt)
}

func TestRemoveMemberNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM team_members")).
		WithArgs(int64(9), "ghost", "github").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RemoveMember(context.Background(), 9, "ghost", "github")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestEntityIDsByTeamRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT m.team_id, m.role")).
		WithArgs(int64(7), "u-1", "github").
		WillReturnRows(sqlmock.NewRows([]string{"team_id", "role"}).
			AddRow(9, "team_admin").
			AddRow(10, "team_admin").
			AddRow(12, "team_developer"))

	byRole, err := store.EntityIDsByTeamRole(context.Background(), 7, "u-1", "github")
	require.NoError(t, err)
	assert.Equal(t, []authz.EntityID{9, 10}, byRole[authz.RoleTeamAdmin])
	assert.Equal(t, []authz.EntityID{12}, byRole[authz.RoleTeamDeveloper])
	assert.NotContains(t, byRole, authz.RoleTeamSecurityEngineer)
}

func TestRepositoryIDsByTeamRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT tr.repository_id, m.role")).
		WithArgs(int64(7), "u-1", "github").
		WillReturnRows(sqlmock.NewRows([]string{"repository_id", "role"}).
			AddRow(1, "team_developer").
			AddRow(3, "team_developer"))

	byRole, err := store.RepositoryIDsByTeamRole(context.Background(), 7, "u-1", "github")
	require.NoError(t, err)
	assert.Equal(t, []authz.EntityID{1, 3}, byRole[authz.RoleTeamDeveloper])
}
