package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/scmguard/scmguard/pkg/accounts"
	"github.com/scmguard/scmguard/pkg/contextkeys"
	"github.com/scmguard/scmguard/pkg/httputil"
)

// AccountResolver resolves accounts by id or provider slug
type AccountResolver interface {
	GetAccount(ctx context.Context, id int64) (*accounts.Account, error)
	GetAccountBySlug(ctx context.Context, provider, slug string) (*accounts.Account, error)
}

// AccountContextMiddleware resolves the {account} path variable into an
// account record and stores it in the request context. The variable may
// be a numeric id or a slug.
type AccountContextMiddleware struct {
	resolver AccountResolver
}

// NewAccountContextMiddleware creates a new account context middleware
func NewAccountContextMiddleware(resolver AccountResolver) *AccountContextMiddleware {
	return &AccountContextMiddleware{resolver: resolver}
}

// Handler wraps an HTTP handler with account resolution. Routes without
// an {account} variable pass through untouched.
func (m *AccountContextMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref, ok := mux.Vars(r)["account"]
		if !ok || ref == "" {
			next.ServeHTTP(w, r)
			return
		}

		account, err := m.resolve(r, ref)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			httputil.WriteNotFoundError(w, "account not found")
			return
		}
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		ctx := contextkeys.WithAccount(r.Context(), account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Slugs are unique per provider, so slug resolution needs the caller
// identity to know which provider namespace to look in.
func (m *AccountContextMiddleware) resolve(r *http.Request, ref string) (*accounts.Account, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return m.resolver.GetAccount(r.Context(), id)
	}
	identity := GetIdentity(r)
	if identity == nil {
		return nil, accounts.ErrAccountNotFound
	}
	return m.resolver.GetAccountBySlug(r.Context(), identity.Provider, ref)
}

// GetAccount extracts the resolved account from the request, nil when absent
func GetAccount(r *http.Request) *accounts.Account {
	v := r.Context().Value(contextkeys.AccountKey)
	if v == nil {
		return nil
	}
	account, ok := v.(*accounts.Account)
	if !ok {
		return nil
	}
	return account
}
