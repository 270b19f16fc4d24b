// Package migrations manages the service's PostgreSQL schema. Migrations
// are versioned, applied in order inside a transaction each, and tracked
// in the schema_migrations table so startup is idempotent.
package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scmguard/scmguard/pkg/observability"
)

// Migration represents a single versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create accounts and subscriptions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id BIGSERIAL PRIMARY KEY,
					slug VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					provider VARCHAR(64) NOT NULL,
					root_account_id BIGINT REFERENCES accounts(id) ON DELETE SET NULL,
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(provider, slug)
				);

				CREATE INDEX idx_accounts_root_account_id ON accounts(root_account_id);

				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
					plan_code VARCHAR(64) NOT NULL,
					status VARCHAR(32) NOT NULL,
					seats INT NOT NULL DEFAULT 0,
					current_period_start TIMESTAMPTZ,
					current_period_end TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create users and account_roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					provider_user_id VARCHAR(255) NOT NULL,
					provider VARCHAR(64) NOT NULL,
					username VARCHAR(255) NOT NULL,
					email VARCHAR(255),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(provider_user_id, provider)
				);

				CREATE TABLE IF NOT EXISTS account_roles (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(64) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(account_id, user_id)
				);

				CREATE INDEX idx_account_roles_user_id ON account_roles(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create repositories and repository_acl tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS repositories (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					full_name VARCHAR(512) NOT NULL,
					provider VARCHAR(64) NOT NULL,
					private BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(provider, full_name)
				);

				CREATE INDEX idx_repositories_account_id ON repositories(account_id);

				CREATE TABLE IF NOT EXISTS repository_acl (
					id BIGSERIAL PRIMARY KEY,
					repository_id BIGINT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
					provider_user_id VARCHAR(255) NOT NULL,
					provider VARCHAR(64) NOT NULL,
					tier VARCHAR(32) NOT NULL,
					granted_by VARCHAR(255) NOT NULL,
					granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMPTZ,
					UNIQUE(repository_id, provider_user_id, provider)
				);

				CREATE INDEX idx_repository_acl_user ON repository_acl(provider_user_id, provider);
				CREATE INDEX idx_repository_acl_expires_at ON repository_acl(expires_at) WHERE expires_at IS NOT NULL;
			`,
		},
		{
			Version:     4,
			Description: "Create teams, team_members and team_repositories tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(account_id, slug)
				);

				CREATE TABLE IF NOT EXISTS team_members (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					provider_user_id VARCHAR(255) NOT NULL,
					provider VARCHAR(64) NOT NULL,
					role VARCHAR(64) NOT NULL,
					added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(team_id, provider_user_id, provider)
				);

				CREATE INDEX idx_team_members_user ON team_members(provider_user_id, provider);

				CREATE TABLE IF NOT EXISTS team_repositories (
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					repository_id BIGINT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
					PRIMARY KEY (team_id, repository_id)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create authz_decisions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS authz_decisions (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					account_id BIGINT NOT NULL,
					provider_user_id VARCHAR(255) NOT NULL,
					provider VARCHAR(64) NOT NULL,
					action VARCHAR(32) NOT NULL,
					resource VARCHAR(64) NOT NULL,
					outcome VARCHAR(32) NOT NULL,
					requested_ids JSONB,
					allowed_ids JSONB,
					request_id VARCHAR(64)
				);

				CREATE INDEX idx_authz_decisions_account_time ON authz_decisions(account_id, timestamp DESC);
			`,
		},
	}
}

// RunMigrations applies all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("applying migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
