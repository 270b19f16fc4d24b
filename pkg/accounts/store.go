package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scmguard/scmguard/pkg/authz"
)

// Store implements account and subscription persistence on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateAccount creates a new account
func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	if account.Status == "" {
		account.Status = AccountStatusActive
	}
	account.IsActive = account.Status == AccountStatusActive

	query := `
		INSERT INTO accounts (slug, name, provider, root_account_id, status, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		account.Slug, account.Name, account.Provider, account.RootAccountID,
		account.Status, account.IsActive).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by ID
func (s *Store) GetAccount(ctx context.Context, id int64) (*Account, error) {
	query := `
		SELECT id, slug, name, provider, root_account_id, status, is_active, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, id))
}

// GetAccountBySlug retrieves an account by provider slug
func (s *Store) GetAccountBySlug(ctx context.Context, provider, slug string) (*Account, error) {
	query := `
		SELECT id, slug, name, provider, root_account_id, status, is_active, created_at, updated_at
		FROM accounts
		WHERE provider = $1 AND slug = $2
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, provider, slug))
}

func (s *Store) scanAccount(row *sql.Row) (*Account, error) {
	account := &Account{}
	var rootID sql.NullInt64
	err := row.Scan(
		&account.ID, &account.Slug, &account.Name, &account.Provider,
		&rootID, &account.Status, &account.IsActive,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if rootID.Valid {
		id := rootID.Int64
		account.RootAccountID = &id
	}
	return account, nil
}

// GetSubscription retrieves the subscription for an account
func (s *Store) GetSubscription(ctx context.Context, accountID int64) (*Subscription, error) {
	query := `
		SELECT id, account_id, plan_code, status, seats,
		       current_period_start, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE account_id = $1
	`
	sub := &Subscription{}
	var periodStart, periodEnd sql.NullTime
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&sub.ID, &sub.AccountID, &sub.PlanCode, &sub.Status, &sub.Seats,
		&periodStart, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if periodStart.Valid {
		t := periodStart.Time
		sub.CurrentPeriodStart = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		sub.CurrentPeriodEnd = &t
	}
	return sub, nil
}

// UpsertSubscription creates or replaces an account's subscription
func (s *Store) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	if sub.Status == "" {
		sub.Status = SubscriptionStatusActive
	}

	query := `
		INSERT INTO subscriptions (account_id, plan_code, status, seats, current_period_start, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id)
		DO UPDATE SET plan_code = EXCLUDED.plan_code, status = EXCLUDED.status,
		              seats = EXCLUDED.seats, current_period_start = EXCLUDED.current_period_start,
		              current_period_end = EXCLUDED.current_period_end, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		sub.AccountID, sub.PlanCode, sub.Status, sub.Seats,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// AuthzAccount builds the engine's view of an account: id, root account,
// and the plan code from its active subscription. A missing subscription
// yields an empty plan code, which the resolver treats as incomplete and
// fails closed.
func (s *Store) AuthzAccount(ctx context.Context, id int64) (*authz.Account, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &authz.Account{
		ID:            account.ID,
		RootAccountID: account.RootAccountID,
	}

	sub, err := s.GetSubscription(ctx, id)
	if err == ErrSubscriptionNotFound {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	if sub.Status == SubscriptionStatusActive || sub.Status == SubscriptionStatusTrialing {
		view.PlanCode = sub.PlanCode
	}
	return view, nil
}

// GetUserWithRole looks up a provider user and their account-level role
// record for one account. Unknown users return nil without error: the
// engine treats absence as the developer default, never as a failure.
func (s *Store) GetUserWithRole(ctx context.Context, providerUserID, provider string, accountID int64) (*UserWithRole, error) {
	query := `
		SELECT u.id, u.provider_user_id, u.provider, u.username, COALESCE(u.email, ''),
		       COALESCE(ar.role, '')
		FROM users u
		LEFT JOIN account_roles ar ON ar.user_id = u.id AND ar.account_id = $3
		WHERE u.provider_user_id = $1 AND u.provider = $2
	`
	user := &UserWithRole{}
	err := s.db.QueryRowContext(ctx, query, providerUserID, provider, accountID).Scan(
		&user.ID, &user.ProviderUserID, &user.Provider, &user.Username, &user.Email,
		&user.AccountRole,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user with role: %w", err)
	}
	return user, nil
}

// SetAccountRole records a user's account-level role
func (s *Store) SetAccountRole(ctx context.Context, accountID, userID int64, role authz.Role) error {
	if !authz.IsAccountRole(role) {
		return fmt.Errorf("invalid account role %q", role)
	}

	query := `
		INSERT INTO account_roles (account_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, accountID, userID, role); err != nil {
		return fmt.Errorf("failed to set account role: %w", err)
	}
	return nil
}
