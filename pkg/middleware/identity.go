package middleware

import (
	"net/http"

	"github.com/scmguard/scmguard/pkg/contextkeys"
	"github.com/scmguard/scmguard/pkg/httputil"
)

// Headers set by the edge gateway after it has authenticated the
// caller against the source-control provider. This service never sees
// credentials, only the verified identity.
const (
	HeaderProviderUserID = "X-Scmguard-User"
	HeaderProvider       = "X-Scmguard-Provider"
	HeaderUserEmail      = "X-Scmguard-Email"
)

// Identity is the authenticated caller as asserted by the gateway
type Identity struct {
	ProviderUserID string
	Provider       string
	Email          string
}

// IdentityMiddleware extracts the caller identity from gateway headers
type IdentityMiddleware struct {
	optional bool // if true, allow requests without identity
}

// NewIdentityMiddleware creates a new identity middleware
func NewIdentityMiddleware(optional bool) *IdentityMiddleware {
	return &IdentityMiddleware{optional: optional}
}

// Handler wraps an HTTP handler with identity extraction
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderProviderUserID)
		provider := r.Header.Get(HeaderProvider)
		if userID == "" || provider == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing caller identity")
			return
		}

		identity := &Identity{
			ProviderUserID: userID,
			Provider:       provider,
			Email:          r.Header.Get(HeaderUserEmail),
		}
		ctx := contextkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the caller identity from the request, nil when absent
func GetIdentity(r *http.Request) *Identity {
	v := r.Context().Value(contextkeys.IdentityKey)
	if v == nil {
		return nil
	}
	identity, ok := v.(*Identity)
	if !ok {
		return nil
	}
	return identity
}
