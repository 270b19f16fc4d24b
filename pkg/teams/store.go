package teams

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scmguard/scmguard/pkg/authz"
)

// Store implements team and membership persistence on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTeam creates a new team in an account
func (s *Store) CreateTeam(ctx context.Context, team *Team) error {
	query := `
		INSERT INTO teams (account_id, name, slug)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, team.AccountID, team.Name, team.Slug).
		Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by ID
func (s *Store) GetTeam(ctx context.Context, id authz.EntityID) (*Team, error) {
	query := `
		SELECT id, account_id, name, slug, created_at, updated_at
		FROM teams
		WHERE id = $1
	`
	team := &Team{}
	err := s.db.QueryRowContext(ctx, query, int64(id)).Scan(
		&team.ID, &team.AccountID, &team.Name, &team.Slug,
		&team.CreatedAt, &team.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// AccountTeamIDs returns every team id in the account.
func (s *Store) AccountTeamIDs(ctx context.Context, accountID int64) ([]authz.EntityID, error) {
	query := `SELECT id FROM teams WHERE account_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account teams: %w", err)
	}
	defer rows.Close()

	return scanEntityIDs(rows)
}

// AddMember adds or updates a team membership. The role must be one of
// the team roles; account roles never appear in memberships.
func (s *Store) AddMember(ctx context.Context, m *Membership) error {
	if !authz.IsTeamRole(m.Role) {
		return fmt.Errorf("%w: %s", ErrInvalidTeamRole, m.Role)
	}

	query := `
		INSERT INTO team_members (team_id, provider_user_id, provider, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, provider_user_id, provider)
		DO UPDATE SET role = EXCLUDED.role
		RETURNING added_at
	`
	err := s.db.QueryRowContext(ctx, query,
		int64(m.TeamID), m.ProviderUserID, m.Provider, m.Role).
		Scan(&m.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a team
func (s *Store) RemoveMember(ctx context.Context, teamID authz.EntityID, providerUserID, provider string) error {
	query := `DELETE FROM team_members WHERE team_id = $1 AND provider_user_id = $2 AND provider = $3`

	result, err := s.db.ExecContext(ctx, query, int64(teamID), providerUserID, provider)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// EntityIDsByTeamRole returns the user's team ids in one account keyed
// by the team role held in each. A user holds at most one role per
// team, so the slices are disjoint.
func (s *Store) EntityIDsByTeamRole(ctx context.Context, accountID int64, providerUserID, provider string) (map[authz.Role][]authz.EntityID, error) {
	query := `
		SELECT m.team_id, m.role
		FROM team_members m
		JOIN teams t ON t.id = m.team_id
		WHERE t.account_id = $1 AND m.provider_user_id = $2 AND m.provider = $3
		ORDER BY m.team_id
	`

	rows, err := s.db.QueryContext(ctx, query, accountID, providerUserID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list team memberships: %w", err)
	}
	defer rows.Close()

	byRole := make(map[authz.Role][]authz.EntityID)
	for rows.Next() {
		var id int64
		var role authz.Role
		if err := rows.Scan(&id, &role); err != nil {
			return nil, fmt.Errorf("failed to scan team membership: %w", err)
		}
		byRole[role] = append(byRole[role], authz.EntityID(id))
	}
	return byRole, rows.Err()
}

// AttachRepository maps a repository into a team
func (s *Store) AttachRepository(ctx context.Context, teamID, repositoryID authz.EntityID) error {
	query := `
		INSERT INTO team_repositories (team_id, repository_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, int64(teamID), int64(repositoryID)); err != nil {
		return fmt.Errorf("failed to attach repository to team: %w", err)
	}
	return nil
}

// DetachRepository removes a repository from a team
func (s *Store) DetachRepository(ctx context.Context, teamID, repositoryID authz.EntityID) error {
	query := `DELETE FROM team_repositories WHERE team_id = $1 AND repository_id = $2`
	if _, err := s.db.ExecContext(ctx, query, int64(teamID), int64(repositoryID)); err != nil {
		return fmt.Errorf("failed to detach repository from team: %w", err)
	}
	return nil
}

// RepositoryIDsByTeamRole returns the repository ids a user reaches
// through team membership, keyed by the team role held. Fed to the
// policy context as team grants when the checked resource is
// repositories rather than teams.
func (s *Store) RepositoryIDsByTeamRole(ctx context.Context, accountID int64, providerUserID, provider string) (map[authz.Role][]authz.EntityID, error) {
	query := `
		SELECT DISTINCT tr.repository_id, m.role
		FROM team_members m
		JOIN teams t ON t.id = m.team_id
		JOIN team_repositories tr ON tr.team_id = m.team_id
		WHERE t.account_id = $1 AND m.provider_user_id = $2 AND m.provider = $3
		ORDER BY tr.repository_id
	`

	rows, err := s.db.QueryContext(ctx, query, accountID, providerUserID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list team repositories: %w", err)
	}
	defer rows.Close()

	byRole := make(map[authz.Role][]authz.EntityID)
	for rows.Next() {
		var id int64
		var role authz.Role
		if err := rows.Scan(&id, &role); err != nil {
			return nil, fmt.Errorf("failed to scan team repository: %w", err)
		}
		byRole[role] = append(byRole[role], authz.EntityID(id))
	}
	return byRole, rows.Err()
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
