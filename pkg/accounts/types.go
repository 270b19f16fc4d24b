package accounts

import (
	"errors"
	"time"

	"github.com/scmguard/scmguard/pkg/authz"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// AccountStatus represents account status
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDeleted   AccountStatus = "deleted"
)

var (
	// ErrAccountNotFound is returned when an account does not exist
	ErrAccountNotFound = errors.New("account not found")
	// ErrSubscriptionNotFound is returned when an account has no subscription
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Account represents a tenant: an organization synced from a git provider
// that owns repositories and teams. Child accounts bill through their
// root account.
type Account struct {
	ID            int64         `json:"id"`
	Slug          string        `json:"slug"`
	Name          string        `json:"name"`
	Provider      string        `json:"provider"`
	RootAccountID *int64        `json:"root_account_id,omitempty"`
	Status        AccountStatus `json:"status"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Subscription represents an account's billing subscription. The plan
// code is the key the remote policy table is partitioned by.
type Subscription struct {
	ID                 int64              `json:"id"`
	AccountID          int64              `json:"account_id"`
	PlanCode           authz.PlanCode     `json:"plan_code"`
	Status             SubscriptionStatus `json:"status"`
	Seats              int                `json:"seats"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// UserWithRole is a provider user joined with their account-level role
// record. AccountRole is the raw stored value; it may be "owner" or empty
// and is normalized by the engine, never here.
type UserWithRole struct {
	ID             int64      `json:"id"`
	ProviderUserID string     `json:"provider_user_id"`
	Provider       string     `json:"provider"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	AccountRole    authz.Role `json:"account_role,omitempty"`
}

// Record converts to the engine's user view
func (u *UserWithRole) Record() *authz.UserRecord {
	if u == nil {
		return nil
	}
	return &authz.UserRecord{
		ProviderUserID: u.ProviderUserID,
		Provider:       u.Provider,
		AccountRole:    u.AccountRole,
	}
}
