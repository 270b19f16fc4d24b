package authz

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scmguard/scmguard/pkg/observability"
)

// Source is the contract the resolver requires from the remote policy
// service. FetchRows must return an empty slice, not an error, when no
// rows match. FetchAccount returns nil without error when the account is
// unknown.
type Source interface {
	FetchRows(ctx context.Context, plan PlanCode, roles []Role, resources []Resource, action Action) ([]PolicyRow, error)
	FetchAccount(ctx context.Context, id int64) (*Account, error)
}

// Resolver builds PolicyContexts. It owns the only suspension points of an
// authorization check: the root-account lookup (when the account bills
// through a distinct root) and the policy-row fetch. It performs no
// retries; fetch failures propagate to the caller.
type Resolver struct {
	source        Source
	onPremise     bool
	onPremisePlan PlanCode
	logger        *observability.Logger
	tracer        trace.Tracer
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithOnPremise puts the resolver in on-premise mode: subscription lookups
// are skipped entirely and every fetch uses the fixed sentinel plan code.
func WithOnPremise(plan PlanCode) ResolverOption {
	return func(r *Resolver) {
		r.onPremise = true
		if plan != "" {
			r.onPremisePlan = plan
		}
	}
}

// WithResolverLogger sets the logger used for debug output
func WithResolverLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver backed by the given policy source
func NewResolver(source Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source:        source,
		onPremisePlan: PlanOnPremise,
		tracer:        otel.Tracer("scmguard/authz"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// candidateRoles builds the role list sent to the policy source. All team
// and ACL role names are always included, not just the ones the user
// holds: the fetch discovers which categories are entitled under the plan
// at all, and per-user filtering happens later in the engine.
func candidateRoles(accountRole Role) []Role {
	return []Role{
		accountRole,
		RoleACLRead,
		RoleACLAdmin,
		RoleTeamDeveloper,
		RoleTeamSecurityEngineer,
		RoleTeamAdmin,
	}
}

// Resolve determines the effective plan code for the account and fetches
// the applicable policy rows for the requested action and resources,
// producing a populated PolicyContext. A nil user is valid and yields the
// developer default. When no resources were requested or plan resolution
// is incomplete, the fetch is skipped and the context carries an empty
// row set, which fails closed downstream.
func (r *Resolver) Resolve(ctx context.Context, account *Account, user *UserRecord, grants Grants, action Action, resources []Resource) (*PolicyContext, error) {
	if account == nil || account.ID == 0 {
		return nil, ErrInvalidRequest
	}

	ctx, span := r.tracer.Start(ctx, "authz.Resolve",
		trace.WithAttributes(
			attribute.Int64("account.id", account.ID),
			attribute.String("authz.action", string(action)),
		))
	defer span.End()

	accountRole := RoleDeveloper
	if user != nil {
		accountRole = NormalizeAccountRole(user.AccountRole)
	}

	plan, err := r.resolvePlan(ctx, account)
	if err != nil {
		return nil, err
	}

	var rows []PolicyRow
	if len(resources) > 0 && plan != "" {
		rows, err = r.source.FetchRows(ctx, plan, candidateRoles(accountRole), resources, action)
		if err != nil {
			return nil, &UpstreamError{Op: "fetch policy rows", Err: err}
		}
	} else if r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"account_id": account.ID,
			"plan":       string(plan),
			"resources":  len(resources),
		}).Debug("skipping policy fetch, context will fail closed")
	}

	span.SetAttributes(
		attribute.String("authz.plan", string(plan)),
		attribute.Int("authz.policy_rows", len(rows)),
	)

	return NewPolicyContext(accountRole, plan, rows, grants), nil
}

// resolvePlan picks the effective plan code. On-premise deployments use
// the fixed sentinel and never touch subscriptions; accounts billing
// through a distinct root account use the root's plan. An empty result
// means resolution could not complete and the caller must fail closed.
func (r *Resolver) resolvePlan(ctx context.Context, account *Account) (PlanCode, error) {
	if r.onPremise {
		return r.onPremisePlan, nil
	}

	if account.RootAccountID != nil && *account.RootAccountID != account.ID {
		root, err := r.source.FetchAccount(ctx, *account.RootAccountID)
		if err != nil {
			return "", &UpstreamError{Op: fmt.Sprintf("fetch root account %d", *account.RootAccountID), Err: err}
		}
		if root == nil {
			return "", nil
		}
		return root.PlanCode, nil
	}

	return account.PlanCode, nil
}
