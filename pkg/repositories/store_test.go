package repositories

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

func TestGetRepository(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, account_id, name, full_name, provider, private, created_at, updated_at")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "name", "full_name", "provider", "private", "created_at", "updated_at"}).
			AddRow(42, 7, "api", "acme/api", "github", true, now, now))

	repo, err := store.GetRepository(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, authz.EntityID(42), repo.ID)
	assert.Equal(t, int64(7), repo.AccountID)
	assert.Equal(t, "acme/api", repo.FullName)
	assert.True(t, repo.Private)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRepositoryNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, account_id, name, full_name, provider, private, created_at, updated_at")).
		WithArgs(int64(9999)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetRepository(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestAccountRepositoryIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM repositories WHERE account_id = $1 ORDER BY id")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(5))

	ids, err := store.AccountRepositoryIDs(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []authz.EntityID{1, 2, 5}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryIDsEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM repositories WHERE account_id = $1 ORDER BY id")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ids, err := store.AccountRepositoryIDs(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGrantACLRejectsUnknownTier(t *testing.T) {
	store, _ := newMockStore(t)

	err := store.GrantACL(context.Background(), &ACLGrant{
		RepositoryID:   1,
		ProviderUserID: "u-1",
		Provider:       "github",
		Tier:           ACLTier("owner"),
	})
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestGrantACLUpsert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO repository_acl")).
		WithArgs(int64(3), "u-1", "github", TierAdmin, "admin@acme.test", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "granted_at"}).AddRow(11, now))

	grant := &ACLGrant{
		RepositoryID:   3,
		ProviderUserID: "u-1",
		Provider:       "github",
		Tier:           TierAdmin,
		GrantedBy:      "admin@acme.test",
	}
	require.NoError(t, store.GrantACL(context.Background(), grant))
	assert.Equal(t, int64(11), grant.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestACLEntityIDsSplitsTiers(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT a.repository_id, a.tier")).
		WithArgs(int64(7), "u-1", "github").
		WillReturnRows(sqlmock.NewRows([]string{"repository_id", "tier"}).
			AddRow(1, "read").
			AddRow(2, "admin").
			AddRow(5, "read"))

	acl, err := store.ACLEntityIDs(context.Background(), 7, "u-1", "github")
	require.NoError(t, err)
	assert.Equal(t, []authz.EntityID{1, 5}, acl.Read)
	assert.Equal(t, []authz.EntityID{2}, acl.Admin)
}

func TestCleanupExpiredGrants(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM repository_acl WHERE expires_at IS NOT NULL")).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.CleanupExpiredGrants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestRevokeACL(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM repository_acl WHERE repository_id = $1")).
		WithArgs(int64(3), "u-1", "github").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RevokeACL(context.Background(), 3, "u-1", "github"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
