// Package audit records authorization decisions. The decision log is an
// append-only trail answering "who was allowed (or denied) what, when":
// compliance reviews and incident response both start here.
package audit

import (
	"time"

	"github.com/scmguard/scmguard/pkg/authz"
)

// Outcome is the terminal state of one authorization check
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeForbidden Outcome = "forbidden"
	// OutcomeError covers checks that failed before a decision was
	// reached (policy service down, store failure). Never counted as a
	// denial: the caller saw a 5xx, not a 403.
	OutcomeError Outcome = "error"
)

// DecisionEvent is one recorded authorization check
type DecisionEvent struct {
	ID             int64            `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	AccountID      int64            `json:"account_id"`
	ProviderUserID string           `json:"provider_user_id"`
	Provider       string           `json:"provider"`
	Action         authz.Action     `json:"action"`
	Resource       authz.Resource   `json:"resource"`
	Outcome        Outcome          `json:"outcome"`
	RequestedIDs   []authz.EntityID `json:"requested_ids,omitempty"`
	AllowedIDs     []authz.EntityID `json:"allowed_ids,omitempty"`
	RequestID      string           `json:"request_id,omitempty"`
}
