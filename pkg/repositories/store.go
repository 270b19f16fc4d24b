package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scmguard/scmguard/pkg/authz"
)

// Store implements repository and ACL grant persistence on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRepository creates a new repository record
func (s *Store) CreateRepository(ctx context.Context, repo *Repository) error {
	query := `
		INSERT INTO repositories (account_id, name, full_name, provider, private)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		repo.AccountID, repo.Name, repo.FullName, repo.Provider, repo.Private).
		Scan(&repo.ID, &repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	return nil
}

// GetRepository retrieves a repository by ID
func (s *Store) GetRepository(ctx context.Context, id authz.EntityID) (*Repository, error) {
	query := `
		SELECT id, account_id, name, full_name, provider, private, created_at, updated_at
		FROM repositories
		WHERE id = $1
	`
	repo := &Repository{}
	err := s.db.QueryRowContext(ctx, query, int64(id)).Scan(
		&repo.ID, &repo.AccountID, &repo.Name, &repo.FullName,
		&repo.Provider, &repo.Private, &repo.CreatedAt, &repo.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRepositoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	return repo, nil
}

// AccountRepositoryIDs returns the full repository id set owned by the
// account, the "everything" pool an entitled account role unlocks.
func (s *Store) AccountRepositoryIDs(ctx context.Context, accountID int64) ([]authz.EntityID, error) {
	query := `SELECT id FROM repositories WHERE account_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account repositories: %w", err)
	}
	defer rows.Close()

	return scanEntityIDs(rows)
}

// GrantACL records a per-repository grant for a provider user
func (s *Store) GrantACL(ctx context.Context, grant *ACLGrant) error {
	if grant.Tier != TierRead && grant.Tier != TierAdmin {
		return ErrInvalidTier
	}

	query := `
		INSERT INTO repository_acl (repository_id, provider_user_id, provider, tier, granted_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (repository_id, provider_user_id, provider)
		DO UPDATE SET tier = EXCLUDED.tier, granted_by = EXCLUDED.granted_by,
		              expires_at = EXCLUDED.expires_at, granted_at = NOW()
		RETURNING id, granted_at
	`
	err := s.db.QueryRowContext(ctx, query,
		int64(grant.RepositoryID), grant.ProviderUserID, grant.Provider,
		grant.Tier, grant.GrantedBy, grant.ExpiresAt).
		Scan(&grant.ID, &grant.GrantedAt)
	if err != nil {
		return fmt.Errorf("failed to grant acl: %w", err)
	}
	return nil
}

// RevokeACL removes a per-repository grant
func (s *Store) RevokeACL(ctx context.Context, repositoryID authz.EntityID, providerUserID, provider string) error {
	query := `DELETE FROM repository_acl WHERE repository_id = $1 AND provider_user_id = $2 AND provider = $3`
	if _, err := s.db.ExecContext(ctx, query, int64(repositoryID), providerUserID, provider); err != nil {
		return fmt.Errorf("failed to revoke acl: %w", err)
	}
	return nil
}

// ACLEntityIDs returns the user's unexpired ACL grants for one account,
// split by tier. Tiers are returned raw; the read-includes-admin union is
// applied by the policy context, not here.
func (s *Store) ACLEntityIDs(ctx context.Context, accountID int64, providerUserID, provider string) (authz.ACLEntityIDs, error) {
	query := `
		SELECT a.repository_id, a.tier
		FROM repository_acl a
		JOIN repositories r ON r.id = a.repository_id
		WHERE r.account_id = $1 AND a.provider_user_id = $2 AND a.provider = $3
		  AND (a.expires_at IS NULL OR a.expires_at > NOW())
		ORDER BY a.repository_id
	`

	var acl authz.ACLEntityIDs
	rows, err := s.db.QueryContext(ctx, query, accountID, providerUserID, provider)
	if err != nil {
		return acl, fmt.Errorf("failed to list acl grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var tier ACLTier
		if err := rows.Scan(&id, &tier); err != nil {
			return acl, fmt.Errorf("failed to scan acl grant: %w", err)
		}
		switch tier {
		case TierAdmin:
			acl.Admin = append(acl.Admin, authz.EntityID(id))
		case TierRead:
			acl.Read = append(acl.Read, authz.EntityID(id))
		}
	}
	return acl, rows.Err()
}

// CleanupExpiredGrants deletes ACL grants past their expiry. Run
// periodically; expired grants are already excluded from reads, so this
// is housekeeping, not enforcement.
func (s *Store) CleanupExpiredGrants(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM repository_acl WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired grants: %w", err)
	}
	return result.RowsAffected()
}

func scanEntityIDs(rows *sql.Rows) ([]authz.EntityID, error) {
	var ids []authz.EntityID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, authz.EntityID(id))
	}
	return ids, rows.Err()
}
