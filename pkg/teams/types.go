package teams

import (
	"errors"
	"time"

	"github.com/scmguard/scmguard/pkg/authz"
)

var (
	// ErrTeamNotFound indicates the team doesn't exist
	ErrTeamNotFound = errors.New("team not found")

	// ErrInvalidTeamRole indicates a role outside the team role set
	ErrInvalidTeamRole = errors.New("invalid team role")

	// ErrMemberNotFound indicates the user is not a member of the team
	ErrMemberNotFound = errors.New("team member not found")
)

// Team is a named group of users inside one account. Teams scope
// repository access: members reach team repositories through their
// team role rather than an account-wide role.
type Team struct {
	ID        authz.EntityID `json:"id"`
	AccountID int64          `json:"account_id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Membership ties a provider user to a team with a team role
type Membership struct {
	TeamID         authz.EntityID `json:"team_id"`
	ProviderUserID string         `json:"provider_user_id"`
	Provider       string         `json:"provider"`
	Role           authz.Role     `json:"role"`
	AddedAt        time.Time      `json:"added_at"`
}
