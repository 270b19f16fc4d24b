package repositories

import (
	"errors"
	"time"

	"github.com/scmguard/scmguard/pkg/authz"
)

// ACLTier is the grant tier of an access-control-list entry
type ACLTier string

const (
	TierRead  ACLTier = "read"
	TierAdmin ACLTier = "admin"
)

var (
	// ErrRepositoryNotFound is returned when a repository does not exist
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrInvalidTier is returned for an unrecognized ACL tier
	ErrInvalidTier = errors.New("invalid acl tier")
)

// Repository represents a repository synced from a git provider
type Repository struct {
	ID        authz.EntityID `json:"id"`
	AccountID int64     `json:"account_id"`
	Name      string    `json:"name"`
	FullName  string    `json:"full_name"`
	Provider  string    `json:"provider"`
	Private   bool      `json:"private"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ACLGrant is one per-repository access grant for a provider user,
// independent of their account or team roles.
type ACLGrant struct {
	ID             int64      `json:"id"`
	RepositoryID   authz.EntityID `json:"repository_id"`
	ProviderUserID string     `json:"provider_user_id"`
	Provider       string     `json:"provider"`
	Tier           ACLTier    `json:"tier"`
	GrantedBy      string     `json:"granted_by,omitempty"`
	GrantedAt      time.Time  `json:"granted_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}
