package authz

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when a required identifying input
	// (typically the account or policy context) is missing
	ErrInvalidRequest = errors.New("missing required request context")
)

// ForbiddenError is the fail-closed outcome: the subject has no qualifying
// grant for the requested action and resource set.
type ForbiddenError struct {
	Action    Action
	Resources []Resource
}

func (e *ForbiddenError) Error() string {
	if len(e.Resources) == 0 {
		return fmt.Sprintf("forbidden: no grant for action %q", e.Action)
	}
	return fmt.Sprintf("forbidden: no grant for action %q on %v", e.Action, e.Resources)
}

// IsForbidden checks if an error is a ForbiddenError
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// UpstreamError wraps a failure of the remote policy source, letting
// callers tell a policy service outage apart from a local fault.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("policy source: failed to %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream checks if an error originated in the policy source
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
